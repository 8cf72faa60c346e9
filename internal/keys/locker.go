package keys

import "context"

// Locker provides the critical section around Load, mutate and Save.
// The returned unlock must be called exactly once.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// MutexLocker serializes callers within one process. A caller whose context
// ends while waiting gives up without acquiring the lock.
type MutexLocker struct {
	sem chan struct{}
}

// NewMutexLocker returns an unlocked MutexLocker
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: make(chan struct{}, 1)}
}

func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
