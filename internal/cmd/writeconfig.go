package cmd

import (
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the starter document written by install --write-config.
// The exclusion list ships here as data, not as a built-in contract.
const configTemplate = `# gitmirror configuration
identity:
  name: backupsvc
  # home: /home/backupsvc

repository:
  # HTTPS URLs for the host below are rewritten to the SSH form at init time.
  url: https://github.com/example/notes
  # host: github.com
  # work_dir: /home/backupsvc/notes
  # bare_dir: /home/backupsvc/gitrepo/notes.git

mirror:
  source: /srv/app/data
  exclude:
    - .git
    - "*.log"
    - "*.tmp"
    - node_modules
    - __pycache__
    - .cache
  # include:
  #   - data/keep.db

logs:
  # dir: /home/backupsvc/logs
  retention: 25

schedule:
  interval: 1h
  cron: "0 * * * *"

ssh:
  # dir: /home/backupsvc/.ssh
  label: deploy
  known_hosts: []
`

// writeConfigTemplate writes the starter document to path. An existing file
// is never overwritten.
func writeConfigTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(configTemplate), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Wrote %s. Edit it, then run install again.\n", path)
	return nil
}
