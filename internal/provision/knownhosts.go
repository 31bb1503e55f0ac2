package provision

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gitmirror/gitmirror/internal/logging"
)

// EnsureKnownHosts appends the given known_hosts lines to dir/known_hosts,
// skipping lines already present. The file mode is fixed to 0644 so the
// record stays readable by tooling running as other users.
func EnsureKnownHosts(dir string, lines []string, logger *logging.Logger) error {
	if len(lines) == 0 {
		return nil
	}

	path := filepath.Join(dir, "known_hosts")

	var existing []string
	if bs, err := os.ReadFile(path); err == nil {
		existing = strings.Split(strings.TrimRight(string(bs), "\n"), "\n")
	} else if !os.IsNotExist(err) {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || slices.Contains(existing, line) {
			continue
		}
		if _, err := f.WriteString(line + "\n"); err != nil {
			return err
		}
		existing = append(existing, line)
		logger.Debugf("registered host key: %s", strings.Fields(line)[0])
	}

	return os.Chmod(path, 0o644)
}
