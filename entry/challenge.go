package entry

import (
	"slices"
	"sync"
)

// Challenge is a passphrase request sent to a user who passed the role
// gate of a store.
type Challenge struct {
	Code       string
	RolePassed bool

	// RoleNames is the user's role names when the challenge was issued,
	// reported to the owner with the result.
	RoleNames []string
}

// ChallengeTracker holds at most one pending challenge per user. It's
// in-memory only; pending challenges are lost on restart.
type ChallengeTracker struct {
	mu      sync.Mutex
	pending map[string]Challenge
}

func NewChallengeTracker() *ChallengeTracker {
	return &ChallengeTracker{pending: map[string]Challenge{}}
}

// Put stores c for userID, replacing any earlier challenge.
func (t *ChallengeTracker) Put(userID string, c Challenge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c.RoleNames = slices.Clone(c.RoleNames)
	t.pending[userID] = c
}

// Take removes and returns the challenge for userID.
func (t *ChallengeTracker) Take(userID string) (Challenge, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.pending[userID]
	if ok {
		delete(t.pending, userID)
	}
	return c, ok
}

func (t *ChallengeTracker) Delete(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, userID)
}

func (t *ChallengeTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
