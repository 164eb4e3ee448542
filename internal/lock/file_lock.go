package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"evolvedvault.dev/internal/ctxlog"
)

// ErrTimeout is returned when the lock could not be acquired before the deadline.
var ErrTimeout = errors.New("timed out waiting for lock")

const (
	initialRetryDelay = 10 * time.Millisecond
	maxRetryDelay     = 100 * time.Millisecond
)

// Locker is the subset of file locking the vault relies on.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
	Path() string
}

// FileLock wraps github.com/gofrs/flock with logging
type FileLock struct {
	filePath string
	flock    *flock.Flock
	logger   *slog.Logger
}

// NewFileLock creates a new file lock for the specified path
func NewFileLock(filePath string, logger *slog.Logger) *FileLock {
	if logger == nil {
		logger = ctxlog.Discard()
	}
	logger.Debug("creating new file lock", "file_path", filePath)

	return &FileLock{
		filePath: filePath,
		flock:    flock.New(filePath),
		logger:   logger,
	}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.filePath
}

// TryLock attempts to acquire an exclusive lock on the file (non-blocking)
// Returns true if lock was acquired, false if file is already locked
func (fl *FileLock) TryLock() (bool, error) {
	success, err := fl.flock.TryLock()
	if err != nil {
		fl.logger.Error("error during try-lock attempt",
			"file_path", fl.filePath,
			"error", err)
		return false, err
	}

	if success {
		fl.logger.Debug("file lock acquired via try-lock", "file_path", fl.filePath)
	} else {
		fl.logger.Debug("try-lock failed - file already locked", "file_path", fl.filePath)
	}

	return success, nil
}

// Unlock releases the file lock
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		fl.logger.Error("failed to release file lock",
			"file_path", fl.filePath,
			"error", err)
		return err
	}

	fl.logger.Debug("file lock released", "file_path", fl.filePath)
	return nil
}

// Release is returned by Acquire and unlocks exactly once.
type Release func() error

// Acquire takes an exclusive lock on lockFile, retrying with exponential
// backoff until timeout elapses or ctx is done.
func Acquire(ctx context.Context, lockFile string, timeout time.Duration) (Release, error) {
	dir := filepath.Dir(lockFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for lock file %s: %w", dir, err)
	}

	return AcquireWith(ctx, NewFileLock(lockFile, ctxlog.FromContext(ctx)), timeout)
}

// AcquireWith is Acquire over an existing Locker.
func AcquireWith(ctx context.Context, locker Locker, timeout time.Duration) (Release, error) {
	deadline := time.Now().Add(timeout)
	retryDelay := initialRetryDelay

	for {
		locked, err := locker.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to try lock %s: %w", locker.Path(), err)
		}
		if locked {
			return releaseOnce(locker), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w %s after %v", ErrTimeout, locker.Path(), timeout)
		}

		sleepTime := retryDelay
		if sleepTime > remaining {
			sleepTime = remaining
		}

		timer := time.NewTimer(sleepTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func releaseOnce(locker Locker) Release {
	released := false
	return func() error {
		if released {
			return nil
		}
		released = true
		return locker.Unlock()
	}
}
