package teams

import "sync"

// teamLocks serializes writes per team so two concurrent leave calls cannot
// both pick a successor or both decide to disband. Postgres row locks would
// also work, but an in-process mutex keeps the invariant checks portable
// across drivers. The map holds one mutex per team ever written in this
// process and is never pruned.
type teamLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newTeamLocks() *teamLocks {
	return &teamLocks{locks: make(map[uint]*sync.Mutex)}
}

// acquire locks the given team and returns the unlock func.
func (l *teamLocks) acquire(teamID uint) func() {
	l.mu.Lock()
	lock, ok := l.locks[teamID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[teamID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
