package deploy

import "sync"

// LockManager hands out non-blocking locks per restart target so the same
// command never runs twice at once. Different targets do not block each other.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// TryLock returns false immediately when key is already held.
func (lm *LockManager) TryLock(key string) bool {
	lm.mu.Lock()
	lock, exists := lm.locks[key]
	if !exists {
		lock = &sync.Mutex{}
		lm.locks[key] = lock
	}
	lm.mu.Unlock()

	return lock.TryLock()
}

// Unlock releases key. Unlocking an unknown key is a no-op.
func (lm *LockManager) Unlock(key string) {
	lm.mu.Lock()
	lock := lm.locks[key]
	lm.mu.Unlock()

	if lock != nil {
		lock.Unlock()
	}
}
