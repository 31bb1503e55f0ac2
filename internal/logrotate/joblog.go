package logrotate

import (
	"fmt"
	"os"
	"time"
)

// JobLog appends timestamped plain-text lines to a job's active log file.
// Lines are prefixed with the local time as [YYYY-MM-DD_HH-MM-SS].
type JobLog struct {
	f   *os.File
	now func() time.Time
}

func OpenJobLog(path string) (*JobLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JobLog{f: f, now: time.Now}, nil
}

// WithClock overrides the timestamp source. Used in tests.
func (l *JobLog) WithClock(now func() time.Time) *JobLog {
	l.now = now
	return l
}

func (l *JobLog) Printf(format string, args ...any) {
	stamp := l.now().Format(stampFormat)
	fmt.Fprintf(l.f, "[%s] %s\n", stamp, fmt.Sprintf(format, args...))
}

func (l *JobLog) Close() error {
	return l.f.Close()
}
