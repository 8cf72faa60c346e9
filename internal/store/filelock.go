package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"

	"keyforge/internal/keys"
)

const fileLockDelay = 10 * time.Millisecond

// FileLocker serializes writers of one key file across processes, so
// keyforge and keyctl can share a document. Goroutines of this process
// queue on an in-process lock first and only the holder contends for the
// machine-wide mutex.
type FileLocker struct {
	name  string
	local *keys.MutexLocker
	clock clock.Clock
	delay time.Duration
}

// NewFileLocker returns a locker keyed on the absolute path of the file
func NewFileLocker(path string) (*FileLocker, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve lock path: %w", err)
	}
	return &FileLocker{
		name:  fileLockName(abs),
		local: keys.NewMutexLocker(),
		clock: clock.WallClock,
		delay: fileLockDelay,
	}, nil
}

// fileLockName maps a path onto a valid mutex name: lower case, starting
// with a letter and at most 40 characters.
func fileLockName(abs string) string {
	sum := sha256.Sum256([]byte(abs))
	return "keyforge-" + hex.EncodeToString(sum[:])[:24]
}

// Lock blocks until both locks are held or ctx is done
func (l *FileLocker) Lock(ctx context.Context) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx)
	if err != nil {
		return nil, err
	}

	releaser, err := mutex.Acquire(mutex.Spec{
		Name:   l.name,
		Clock:  l.clock,
		Delay:  l.delay,
		Cancel: ctx.Done(),
	})
	if err != nil {
		unlockLocal()
		if errors.Is(err, mutex.ErrCancelled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, keys.NewStorageError("lock", fmt.Errorf("acquire %s: %w", l.name, err))
	}
	return func() {
		releaser.Release()
		unlockLocal()
	}, nil
}
