package provision

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/gitmirror/gitmirror/internal/logging"
)

// KeyDecision is the operator's choice when the scan finds key material that
// is already present. It is resolved once per run.
type KeyDecision int

const (
	// GenerateNew requires an empty key directory.
	GenerateNew KeyDecision = iota
	// KeepExisting treats the discovered key as the active one, no mutation.
	KeepExisting
	// ReplaceExisting deletes all discovered keys and generates a new pair.
	ReplaceExisting
)

// KeyMaterial is the active SSH identity of this installation.
type KeyMaterial struct {
	Owner          string
	Token          string // installation identifier; empty for kept or imported keys
	PrivateKeyPath string
	PublicKeyPath  string // empty if no public half could be located
}

// PublicKey returns the authorized-keys form of the active key's public half.
func (m *KeyMaterial) PublicKey() (string, error) {
	if m.PublicKeyPath == "" {
		return "", errors.New("no public key file located")
	}
	bs, err := os.ReadFile(m.PublicKeyPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bs)), nil
}

// KeyRequest describes how the active key should be established.
type KeyRequest struct {
	Dir   string // the .ssh directory
	Owner string // account name, encoded into generated file names
	Label string // installation label, encoded into generated file names
	// ImportPath, when set, adopts an operator-supplied private key instead
	// of generating one.
	ImportPath string
	// Decision applies when the scan finds existing keys.
	Decision KeyDecision
}

// privateKeyPatterns are the naming conventions recognized by the scan:
// certificate files, generic id-prefixed files, and algorithm-prefixed files.
var privateKeyPatterns = []string{"*.pem", "id_*", "ed25519_*", "rsa_*", "ecdsa_*"}

// ScanPrivateKeys returns files in dir matching the private key naming
// conventions. Public halves and SSH housekeeping files are not keys.
func ScanPrivateKeys(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".pub") {
			continue
		}
		switch name {
		case "known_hosts", "authorized_keys", "config":
			continue
		}
		for _, pattern := range privateKeyPatterns {
			if ok, _ := filepath.Match(pattern, name); ok {
				keys = append(keys, filepath.Join(dir, name))
				break
			}
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// EnsureKey establishes exactly one active keypair for the installation per
// the request. Failure to locate a public half is reported, not fatal.
func EnsureKey(req KeyRequest, logger *logging.Logger) (*KeyMaterial, error) {
	if err := os.MkdirAll(req.Dir, 0o700); err != nil {
		return nil, err
	}

	if req.ImportPath != "" {
		return importKey(req, logger)
	}

	existing, err := ScanPrivateKeys(req.Dir)
	if err != nil {
		return nil, err
	}

	if len(existing) > 0 {
		switch req.Decision {
		case KeepExisting:
			active := existing[0]
			m := &KeyMaterial{Owner: req.Owner, PrivateKeyPath: active}
			m.PublicKeyPath = locatePublicKey(req.Dir, active, logger)
			logger.Infof("keeping existing key %s", active)
			return m, nil
		case ReplaceExisting:
			for _, key := range existing {
				if err := os.Remove(key); err != nil {
					return nil, fmt.Errorf("remove key %s: %w", key, err)
				}
				if err := os.Remove(key + ".pub"); err != nil && !os.IsNotExist(err) {
					return nil, err
				}
				logger.Infof("removed existing key %s", key)
			}
		default:
			return nil, fmt.Errorf("found %d existing keys in %s, keep-or-replace decision required", len(existing), req.Dir)
		}
	}

	return generateKey(req, logger)
}

func generateKey(req KeyRequest, logger *logging.Logger) (*KeyMaterial, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("ed25519_%s_%s_%s", req.Label, req.Owner, token)
	privPath := filepath.Join(req.Dir, name)
	pubPath := privPath + ".pub"

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	block, err := ssh.MarshalPrivateKey(priv, name)
	if err != nil {
		return nil, err
	}
	if err := writeKeyFile(privPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, err
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub))) + " " + name + "\n"
	if err := writeKeyFile(pubPath, []byte(line), 0o644); err != nil {
		return nil, err
	}

	logger.Infof("generated keypair %s", privPath)
	return &KeyMaterial{
		Owner:          req.Owner,
		Token:          token,
		PrivateKeyPath: privPath,
		PublicKeyPath:  pubPath,
	}, nil
}

func importKey(req KeyRequest, logger *logging.Logger) (*KeyMaterial, error) {
	bs, err := os.ReadFile(req.ImportPath)
	if err != nil {
		return nil, fmt.Errorf("read supplied key: %w", err)
	}

	dst := filepath.Join(req.Dir, filepath.Base(req.ImportPath))
	if err := writeKeyFile(dst, bs, 0o600); err != nil {
		return nil, err
	}
	logger.Infof("adopted supplied key as %s", dst)

	m := &KeyMaterial{Owner: req.Owner, PrivateKeyPath: dst}
	m.PublicKeyPath = locatePublicKey(req.Dir, dst, logger)
	return m, nil
}

// locatePublicKey prefers the .pub companion of the active key and falls back
// to any .pub file in the directory.
func locatePublicKey(dir, privPath string, logger *logging.Logger) string {
	companion := privPath + ".pub"
	if _, err := os.Stat(companion); err == nil {
		return companion
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.pub"))
	slices.Sort(matches)
	if len(matches) > 0 {
		return matches[0]
	}

	logger.Warnf("no public key found in %s, register the key with the remote host manually", dir)
	return ""
}

func writeKeyFile(path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return err
	}
	// WriteFile does not change the mode of pre-existing files.
	return os.Chmod(path, mode)
}
