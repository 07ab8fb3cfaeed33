package rewards

import "time"

// ClaimState is a player's rolling gift-box claim counter.
type ClaimState struct {
	Count      int
	LastUpdate *time.Time
}

// ApplyGrant adds a grant to the claim window. A grant at or beyond window
// after the last update starts a fresh window holding only this grant. The
// anchor always moves to now, so the window slides with every grant.
func ApplyGrant(state ClaimState, grantSize int, now time.Time, window time.Duration) ClaimState {
	next := ClaimState{LastUpdate: &now}
	if WindowExpired(state.LastUpdate, now, window) {
		next.Count = grantSize
		return next
	}
	next.Count = state.Count + grantSize
	return next
}

// WindowExpired reports whether a window anchored at lastUpdate has lapsed.
func WindowExpired(lastUpdate *time.Time, now time.Time, window time.Duration) bool {
	return lastUpdate == nil || now.Sub(*lastUpdate) >= window
}

// EffectiveCount is the count a grant at now would build on: zero once the window lapsed.
func EffectiveCount(state ClaimState, now time.Time, window time.Duration) int {
	if WindowExpired(state.LastUpdate, now, window) {
		return 0
	}
	return state.Count
}

// Remaining is the advisory budget left under limit. It never goes negative and
// is not enforced at grant time.
func Remaining(count, limit int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
