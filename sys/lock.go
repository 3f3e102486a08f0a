package sys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

// DefaultLockStaleTTL is the default TTL used when breaking stale lock files
// if callers choose the package default rather than specifying one.
var DefaultLockStaleTTL = 30 * time.Second

// AcquireFileLock tries to take an exclusive lock at path + ".lock". It
// first attempts a platform-native advisory lock; if that is unavailable it
// falls back to an atomic create (O_EXCL) holding the owner pid and a
// unixnano timestamp (uint32 + uint64, LittleEndian). It retries up to
// maxRetries with retryInterval between attempts. If staleTTL > 0, an
// existing lock file older than staleTTL (by recorded timestamp, else file
// modtime) is removed and acquisition retried. On success it returns a
// release function that removes the lock file only if it still belongs to
// this process.
func AcquireFileLock(path string, maxRetries int, retryInterval time.Duration, staleTTL time.Duration) (func() error, error) {
	lockPath := path + ".lock"
	var lastErr error
	var ourPid int
	var ourTimestamp int64
	for i := 0; i <= maxRetries; i++ {
		if info, serr := os.Stat(lockPath); serr == nil {
			if staleTTL <= 0 {
				time.Sleep(retryInterval)
				continue
			}
			age := lockAge(lockPath, info)
			if age <= staleTTL {
				// fresh lock held by someone else: wait and retry
				time.Sleep(retryInterval)
				continue
			}
			// stale: remove and fall through to acquisition
			_ = os.Remove(lockPath)
			time.Sleep(10 * time.Millisecond)
		}

		// Prefer the platform-native lock when available.
		if rel, err := AcquireOSFileLock(lockPath, 0); err == nil {
			// Record pid/timestamp in the file for diagnostics and stale
			// detection by other processes; the OS lock is authoritative.
			buf := make([]byte, 12)
			binary.LittleEndian.PutUint32(buf[0:4], uint32(os.Getpid()))
			binary.LittleEndian.PutUint64(buf[4:12], uint64(time.Now().UTC().UnixNano()))
			_ = os.WriteFile(lockPath, buf, 0644)
			return rel, nil
		}

		// Fallback: atomic create.
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			ourPid = os.Getpid()
			ourTimestamp = time.Now().UTC().UnixNano()
			buf := make([]byte, 12)
			binary.LittleEndian.PutUint32(buf[0:4], uint32(ourPid))
			binary.LittleEndian.PutUint64(buf[4:12], uint64(ourTimestamp))
			_, _ = f.Write(buf)
			f.Close()

			release := func() error {
				b, rerr := os.ReadFile(lockPath)
				if rerr != nil {
					if os.IsNotExist(rerr) {
						return nil
					}
					return rerr
				}
				if len(b) >= 12 {
					pidFromFile := int(binary.LittleEndian.Uint32(b[0:4]))
					tsFromFile := int64(binary.LittleEndian.Uint64(b[4:12]))
					if pidFromFile == ourPid && tsFromFile == ourTimestamp {
						return os.Remove(lockPath)
					}
				}
				// The lock was broken and re-taken by someone else; leave it.
				return nil
			}
			return release, nil
		}
		lastErr = err
		time.Sleep(retryInterval)
	}
	if lastErr == nil {
		lastErr = errors.New("failed to acquire lock")
	}
	return nil, fmt.Errorf("AcquireFileLock %s: %w", lockPath, lastErr)
}

// lockAge returns the age of an existing lock file, preferring the recorded
// timestamp over the file modtime.
func lockAge(lockPath string, info os.FileInfo) time.Duration {
	now := time.Now().UTC()
	if b, err := os.ReadFile(lockPath); err == nil && len(b) >= 12 {
		if ts := int64(binary.LittleEndian.Uint64(b[4:12])); ts > 0 {
			return now.Sub(time.Unix(0, ts))
		}
	}
	return now.Sub(info.ModTime())
}
