package memory

import (
	"context"
	"sync"
)

// ActionLock is a process-local ActionLock.
type ActionLock struct {
	mu      sync.Mutex
	holders map[string]string
}

func NewActionLock() *ActionLock {
	return &ActionLock{holders: make(map[string]string)}
}

func (l *ActionLock) Acquire(ctx context.Context, key, owner string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holders[key]; held {
		return false, nil
	}
	l.holders[key] = owner
	return true, nil
}

// Release frees key only when owner still holds it.
func (l *ActionLock) Release(ctx context.Context, key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holders[key] == owner {
		delete(l.holders, key)
	}
	return nil
}

func (l *ActionLock) Holder(ctx context.Context, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders[key], nil
}
