package ledger

import "time"

// callClass separates the two independently-gated operation classes.
type callClass int

const (
	classSubmission callClass = iota
	classDecryption
)

// rateLimiter enforces a single global cooldown per identity and call class.
// The timestamp update is coupled to admission, not to the gated operation's
// eventual success: once a call clears the cooldown check, its timestamp is
// recorded even if a later precondition fails.
type rateLimiter struct {
	cooldown       time.Duration
	lastSubmission map[string]time.Time
	lastDecryption map[string]time.Time
}

func newRateLimiter(cooldownSeconds uint64) *rateLimiter {
	return &rateLimiter{
		cooldown:       time.Duration(cooldownSeconds) * time.Second,
		lastSubmission: make(map[string]time.Time),
		lastDecryption: make(map[string]time.Time),
	}
}

func (r *rateLimiter) classMap(class callClass) map[string]time.Time {
	if class == classSubmission {
		return r.lastSubmission
	}
	return r.lastDecryption
}

// admit checks the cooldown for (identity, class) at now and, on admission,
// records now as the identity's new last-call time. A call at exactly
// last + cooldown is admitted; strictly before it is rejected and nothing is
// recorded.
func (r *rateLimiter) admit(class callClass, identity string, now time.Time) error {
	last := r.classMap(class)
	if prev, ok := last[identity]; ok && now.Before(prev.Add(r.cooldown)) {
		return ErrRateLimited
	}
	last[identity] = now
	return nil
}

func (r *rateLimiter) setCooldownSeconds(seconds uint64) error {
	if seconds == 0 {
		return ErrZeroCooldown
	}
	r.cooldown = time.Duration(seconds) * time.Second
	return nil
}

func (r *rateLimiter) cooldownSeconds() uint64 {
	return uint64(r.cooldown / time.Second)
}
