package gitrepo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/gitmirror/gitmirror/internal/config"
	"github.com/gitmirror/gitmirror/internal/logging"
	"github.com/gitmirror/gitmirror/internal/provision"
)

// ResolveAuth loads the provisioned deploy key for transport use. Without a
// key the auth is nil and go-git falls back to its defaults (agent, default
// identity files). The known_hosts record is pinned only when provisioning
// wrote one; a fresh install without registered host keys still works.
func ResolveAuth(cfg *config.Root, logger *logging.Logger) (transport.AuthMethod, error) {
	keys, err := provision.ScanPrivateKeys(cfg.SSH.Dir)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		logger.Debugf("no deploy key in %s, using ambient SSH identity", cfg.SSH.Dir)
		return nil, nil
	}

	knownHosts := filepath.Join(cfg.SSH.Dir, "known_hosts")
	if _, err := os.Stat(knownHosts); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		logger.Warnf("no known_hosts record in %s, host keys are not pinned", cfg.SSH.Dir)
		knownHosts = ""
	}

	auth, err := SSHAuth(keys[0], knownHosts)
	if err != nil {
		return nil, fmt.Errorf("load deploy key %s: %w", keys[0], err)
	}
	return auth, nil
}

// SSHAuth builds the transport auth for the provisioned deploy key. The host
// key is verified against the known_hosts record written during
// provisioning; with an empty path go-git falls back to its defaults.
func SSHAuth(keyPath, knownHostsPath string) (transport.AuthMethod, error) {
	auth, err := gitssh.NewPublicKeysFromFile("git", keyPath, "")
	if err != nil {
		return nil, err
	}

	if knownHostsPath != "" {
		callback, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, err
		}
		auth.HostKeyCallback = callback
	}

	return auth, nil
}
