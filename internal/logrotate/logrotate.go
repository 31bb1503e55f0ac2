// Package logrotate bounds the log history kept for each recurring job.
// Before a job writes its new log, the previous log file is compressed in
// place and the archive set is pruned to a fixed count, oldest first.
package logrotate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const stampFormat = "2006-01-02_15-04-05"

type Rotator struct {
	dir  string
	name string // job name, e.g. "mirror"
	keep int    // archives retained after pruning
}

func New(dir, name string, keep int) *Rotator {
	return &Rotator{dir: dir, name: name, keep: keep}
}

// Current returns the path of the active log file for this job.
func (r *Rotator) Current() string {
	return filepath.Join(r.dir, r.name+".log")
}

// Rotate compresses the previous log file, if any, into
// <name>.<stamp>.log.gz and prunes the archive set down to the newest keep
// entries. The stamp is the previous file's modification time, so archive
// names sort chronologically.
func (r *Rotator) Rotate() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}

	current := r.Current()

	info, err := os.Stat(current)
	if err == nil {
		stamp := info.ModTime().Format(stampFormat)
		archive := filepath.Join(r.dir, fmt.Sprintf("%s.%s.log.gz", r.name, stamp))
		if err := compressFile(current, archive); err != nil {
			return fmt.Errorf("rotate %s: %w", current, err)
		}
		if err := os.Remove(current); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	return r.prune()
}

func (r *Rotator) prune() error {
	archives, err := r.Archives()
	if err != nil {
		return err
	}

	for _, old := range archives[min(r.keep, len(archives)):] {
		if err := os.Remove(old); err != nil {
			return err
		}
	}
	return nil
}

// Archives returns this job's compressed archives, newest first.
func (r *Rotator) Archives() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}

	var archives []string
	prefix := r.name + "."
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".log.gz") {
			archives = append(archives, filepath.Join(r.dir, e.Name()))
		}
	}

	// Stamps sort lexicographically in chronological order.
	slices.Sort(archives)
	slices.Reverse(archives)
	return archives, nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
