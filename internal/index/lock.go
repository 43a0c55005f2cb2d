package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	sdierrors "github.com/constellation-sdi/constellation/internal/errors"
)

// DefaultLockTimeout bounds how long a writer waits for another process.
const DefaultLockTimeout = 30 * time.Second

var errLockHeld = errors.New("held by another process")

// writerLock serializes index writers for one service id across processes.
// The lock file lives at <configDir>/<id>.lock.
type writerLock struct {
	path    string
	flock   *flock.Flock
	timeout time.Duration
}

func newWriterLock(configDir, id string, timeout time.Duration) *writerLock {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	path := filepath.Join(configDir, id+".lock")
	return &writerLock{path: path, flock: flock.New(path), timeout: timeout}
}

// Lock acquires the lock, retrying with backoff until the timeout elapses.
func (l *writerLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cfg := sdierrors.RetryConfig{
		MaxRetries:   int(l.timeout / (250 * time.Millisecond)),
		InitialDelay: 25 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       true,
		Retryable:    func(err error) bool { return errors.Is(err, errLockHeld) },
	}
	err := sdierrors.Retry(ctx, cfg, func() error {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return err
		}
		if !acquired {
			return errLockHeld
		}
		return nil
	})
	if err != nil {
		return sdierrors.New(sdierrors.ErrCodeIndexLocked,
			fmt.Sprintf("index writer lock %s not acquired", l.path), err)
	}
	return nil
}

// Unlock releases the lock.
func (l *writerLock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
