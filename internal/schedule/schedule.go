// Package schedule registers the recurring jobs in the service identity's
// personal crontab. The table is read, de-duplicated and written back in one
// pass, never partially.
package schedule

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gitmirror/gitmirror/internal/logging"
)

// Runner executes the crontab tool. Abstracted for tests.
type Runner interface {
	// Output runs the command and returns its stdout.
	Output(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s %v: %w: %s", name, args, err, stderr.String())
	}
	return out, nil
}

func SystemRunner() Runner {
	return execRunner{}
}

// Entry is one recurring-execution line for the schedule table.
type Entry struct {
	// Spec is the crontab time spec, e.g. "0 * * * *".
	Spec string
	// Command runs the sync job and, only on its success, the push job.
	Command string
	// Match identifies an already-registered entry by substring, so a
	// re-run never duplicates the line even if spec or flags changed.
	Match string
}

// Line renders the crontab line for the entry.
func (e Entry) Line() string {
	return e.Spec + " " + e.Command
}

// Activator maintains the schedule table of one account.
type Activator struct {
	run  Runner
	user string
	log  *logging.Logger
}

func NewActivator(run Runner, user string, logger *logging.Logger) *Activator {
	return &Activator{run: run, user: user, log: logger}
}

// EnsureScheduled appends the entry to the account's crontab unless a line
// matching the entry is already present. Returns whether a line was added.
func (a *Activator) EnsureScheduled(ctx context.Context, entry Entry) (bool, error) {
	existing, err := a.readTable(ctx)
	if err != nil {
		return false, err
	}

	merged, added := Merge(existing, entry)
	if !added {
		a.log.Debugf("schedule entry already present for %q", entry.Match)
		return false, nil
	}

	if _, err := a.run.Output(ctx, []byte(merged), "crontab", "-u", a.user, "-"); err != nil {
		return false, fmt.Errorf("write crontab for %s: %w", a.user, err)
	}
	a.log.Infof("registered schedule entry: %s", entry.Line())
	return true, nil
}

// Scheduled reports whether a line matching the entry is already registered.
func (a *Activator) Scheduled(ctx context.Context, entry Entry) (bool, error) {
	existing, err := a.readTable(ctx)
	if err != nil {
		return false, err
	}
	_, wouldAdd := Merge(existing, entry)
	return !wouldAdd, nil
}

func (a *Activator) readTable(ctx context.Context) (string, error) {
	out, err := a.run.Output(ctx, nil, "crontab", "-l", "-u", a.user)
	if err != nil {
		// An account without a crontab yet is not an error.
		if strings.Contains(err.Error(), "no crontab") {
			return "", nil
		}
		return "", fmt.Errorf("read crontab for %s: %w", a.user, err)
	}
	return string(out), nil
}

// Merge adds the entry's line to the table unless any line already contains
// the entry's match string. The returned table always ends with a newline.
func Merge(table string, entry Entry) (string, bool) {
	for line := range strings.Lines(table) {
		if strings.Contains(line, entry.Match) {
			return table, false
		}
	}

	if table != "" && !strings.HasSuffix(table, "\n") {
		table += "\n"
	}
	return table + entry.Line() + "\n", true
}
