// Package rewards holds the pure time-window arithmetic behind reward grants.
package rewards

import "time"

// Eligibility is the result of a cooldown check.
type Eligibility struct {
	Eligible  bool
	Remaining time.Duration
}

// CheckEligibility reports whether a channel with the given last grant time may
// grant again at now. A nil lastGrant is always eligible.
func CheckEligibility(lastGrant *time.Time, now time.Time, cooldown time.Duration) Eligibility {
	if lastGrant == nil {
		return Eligibility{Eligible: true}
	}

	elapsed := now.Sub(*lastGrant)
	if elapsed >= cooldown {
		return Eligibility{Eligible: true}
	}

	remaining := cooldown - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return Eligibility{Eligible: false, Remaining: remaining}
}

// Advance returns the later of the stored grant time and now. Cooldown
// timestamps never move backwards, even across instances with clock skew.
func Advance(lastGrant *time.Time, now time.Time) time.Time {
	if lastGrant != nil && lastGrant.After(now) {
		return *lastGrant
	}
	return now
}
