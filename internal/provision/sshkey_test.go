package provision_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/provision"
)

func TestScanPrivateKeys(t *testing.T) {
	dir := t.TempDir()

	files := map[string]bool{ // name -> expected in scan
		"id_rsa":                         true,
		"id_rsa.pub":                     false,
		"ed25519_deploy_backupsvc_aabb1": true,
		"deploy.pem":                     true,
		"rsa_old":                        true,
		"ecdsa_host":                     true,
		"known_hosts":                    false,
		"authorized_keys":                false,
		"config":                         false,
		"notes.txt":                      false,
	}
	for name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := provision.ScanPrivateKeys(dir)
	if err != nil {
		t.Fatal(err)
	}

	found := make(map[string]bool)
	for _, k := range keys {
		found[filepath.Base(k)] = true
	}
	for name, want := range files {
		if found[name] != want {
			t.Errorf("scan of %q: got %v, want %v", name, found[name], want)
		}
	}
}

func TestScanPrivateKeysMissingDir(t *testing.T) {
	keys, err := provision.ScanPrivateKeys(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no keys, got %v", keys)
	}
}

func TestEnsureKeyGenerates(t *testing.T) {
	dir := t.TempDir()

	m, err := provision.EnsureKey(provision.KeyRequest{
		Dir:   dir,
		Owner: "backupsvc",
		Label: "deploy",
	}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	base := filepath.Base(m.PrivateKeyPath)
	if !strings.HasPrefix(base, "ed25519_deploy_backupsvc_") {
		t.Fatalf("unexpected key name %q", base)
	}
	if m.Token == "" || !strings.HasSuffix(base, m.Token) {
		t.Fatalf("token %q not encoded in name %q", m.Token, base)
	}

	info, err := os.Stat(m.PrivateKeyPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("private key mode %o, want 0600", info.Mode().Perm())
	}

	info, err = os.Stat(m.PublicKeyPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("public key mode %o, want 0644", info.Mode().Perm())
	}

	// Private key parses, public line is valid authorized_keys material.
	bs, err := os.ReadFile(m.PrivateKeyPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ssh.ParsePrivateKey(bs); err != nil {
		t.Fatalf("generated private key does not parse: %v", err)
	}
	line, err := m.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line)); err != nil {
		t.Fatalf("generated public key does not parse: %v", err)
	}
}

func TestEnsureKeyKeepExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "id_rsa")
	if err := os.WriteFile(existing, []byte("old key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing+".pub", []byte("ssh-rsa AAAA old"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := provision.EnsureKey(provision.KeyRequest{
		Dir:      dir,
		Owner:    "backupsvc",
		Label:    "deploy",
		Decision: provision.KeepExisting,
	}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if m.PrivateKeyPath != existing {
		t.Fatalf("expected %s to stay active, got %s", existing, m.PrivateKeyPath)
	}
	if m.PublicKeyPath != existing+".pub" {
		t.Fatalf("expected companion public key, got %s", m.PublicKeyPath)
	}

	keys, err := provision.ScanPrivateKeys(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("keep must not add keys, found %d", len(keys))
	}
}

func TestEnsureKeyReplaceExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"id_rsa", "rsa_old"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("old"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	m, err := provision.EnsureKey(provision.KeyRequest{
		Dir:      dir,
		Owner:    "backupsvc",
		Label:    "deploy",
		Decision: provision.ReplaceExisting,
	}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	keys, err := provision.ScanPrivateKeys(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected exactly one key after replace, found %d: %v", len(keys), keys)
	}
	if keys[0] != m.PrivateKeyPath {
		t.Fatalf("surviving key %s is not the active one %s", keys[0], m.PrivateKeyPath)
	}
}

func TestEnsureKeyExistingWithoutDecision(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "id_rsa"), []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := provision.EnsureKey(provision.KeyRequest{
		Dir:   dir,
		Owner: "backupsvc",
		Label: "deploy",
	}, logging.NewNop())
	if err == nil {
		t.Fatal("expected error when keys exist and no decision was made")
	}
}

func TestEnsureKeyImport(t *testing.T) {
	src := filepath.Join(t.TempDir(), "supplied_key")
	if err := os.WriteFile(src, []byte("supplied private key"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	m, err := provision.EnsureKey(provision.KeyRequest{
		Dir:        dir,
		Owner:      "backupsvc",
		Label:      "deploy",
		ImportPath: src,
	}, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Dir(m.PrivateKeyPath) != dir {
		t.Fatalf("imported key not in target dir: %s", m.PrivateKeyPath)
	}
	info, err := os.Stat(m.PrivateKeyPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("imported key mode %o, want 0600", info.Mode().Perm())
	}

	// No public half anywhere: reported via empty path, not an error.
	if m.PublicKeyPath != "" {
		t.Fatalf("expected no public key, got %s", m.PublicKeyPath)
	}
	if _, err := m.PublicKey(); err == nil {
		t.Fatal("expected PublicKey() to fail without a public half")
	}
}

func TestEnsureKnownHostsIdempotent(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		"github.com ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAexample",
		"github.com ssh-rsa AAAAB3NzaC1yc2Eexample",
	}

	for range 3 {
		if err := provision.EnsureKnownHosts(dir, lines, logging.NewNop()); err != nil {
			t.Fatal(err)
		}
	}

	bs, err := os.ReadFile(filepath.Join(dir, "known_hosts"))
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Split(strings.TrimRight(string(bs), "\n"), "\n")
	if len(got) != 2 {
		t.Fatalf("expected 2 unique lines, got %d:\n%s", len(got), bs)
	}

	info, err := os.Stat(filepath.Join(dir, "known_hosts"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("known_hosts mode %o, want 0644", info.Mode().Perm())
	}
}
