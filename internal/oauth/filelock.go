package oauth

import (
	"fmt"
	"os"
	"time"
)

// fileLock coordinates credential-file access across processes using a
// sidecar lock file. A second concurrent invocation blocks rather than
// interleaving writes.
type fileLock struct {
	lockFile *os.File
	lockPath string
}

// acquireFileLock acquires an exclusive lock for filePath by exclusively
// creating filePath + ".lock". Locks older than 30 seconds are treated as
// stale leftovers of a crashed process and reaped.
func acquireFileLock(filePath string) (*fileLock, error) {
	lockPath := filePath + ".lock"
	maxRetries := 50
	retryDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			// Write PID to lock file for debugging
			fmt.Fprintf(lockFile, "%d", os.Getpid())
			return &fileLock{
				lockFile: lockFile,
				lockPath: lockPath,
			}, nil
		}

		if os.IsExist(err) {
			if info, statErr := os.Stat(lockPath); statErr == nil {
				age := time.Since(info.ModTime())
				if age > 30*time.Second {
					// Stale lock; handle removal races and real errors
					if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
						return nil, fmt.Errorf(
							"failed to remove stale lock file %s: %w",
							lockPath,
							remErr,
						)
					}
					continue
				}
			}

			// Lock is held by another process, wait and retry
			time.Sleep(retryDelay)
			continue
		}

		return nil, fmt.Errorf("failed to acquire file lock: %w", err)
	}

	return nil, fmt.Errorf(
		"timeout waiting for file lock after %v",
		time.Duration(maxRetries)*retryDelay,
	)
}

// release releases the file lock.
func (fl *fileLock) release() error {
	if fl.lockFile != nil {
		fl.lockFile.Close()
	}
	return os.Remove(fl.lockPath)
}
