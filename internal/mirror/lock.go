package mirror

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// staleAfter is the age past which a leftover lock file from a crashed run
// is taken over. Runs are expected to finish well under the schedule period.
const staleAfter = 6 * time.Hour

// acquireLock creates path exclusively and returns a release function. A
// second concurrent run fails instead of racing the first; a lock older than
// staleAfter is treated as abandoned and replaced.
func acquireLock(path string) (func(), error) {
	for range 2 {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintln(f, strconv.Itoa(os.Getpid()))
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		info, statErr := os.Stat(path)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue // holder released between our attempts
			}
			return nil, statErr
		}
		if time.Since(info.ModTime()) < staleAfter {
			return nil, fmt.Errorf("lock %s held by another run", path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("lock %s: could not acquire", path)
}
