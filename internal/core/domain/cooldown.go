package domain

import "time"

const CooldownWindow = 24 * time.Hour

// EvaluateCooldown decides eligibility from the latest accepted vote of a
// (target, identity) pair. The window boundary is inclusive: a vote exactly
// window after the last one is allowed.
func EvaluateCooldown(lastVoteAt *time.Time, now time.Time, window time.Duration) Eligibility {
	if lastVoteAt == nil {
		return Eligibility{Eligible: true}
	}

	last := *lastVoteAt
	elapsed := now.Sub(last)
	if elapsed >= window {
		return Eligibility{Eligible: true, LastVoteAt: &last}
	}

	retryAfter := window - elapsed
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Eligibility{Eligible: false, RetryAfter: retryAfter, LastVoteAt: &last}
}
