package model

import "time"

// PlayerRecord is the per-player ledger document. Timestamps are epoch milliseconds.
type PlayerRecord struct {
	FID                   int64                `json:"fid"`
	LastShareTime         *int64               `json:"lastShareTime,omitempty"`
	LastFollowTime        *int64               `json:"lastFollowTime,omitempty"`
	LastMiniAppTime       *int64               `json:"lastMiniAppTime,omitempty"`
	HasFollowed           bool                 `json:"hasFollowed"`
	GiftBoxClaimsInPeriod int                  `json:"giftBoxClaimsInPeriod"`
	LastGiftBoxUpdate     *int64               `json:"lastGiftBoxUpdate,omitempty"`
	Boosters              map[string]int64     `json:"boosters"`
	BoosterTransactions   []BoosterTransaction `json:"boosterTransactions"`

	// GrantVersion is bumped by every grant write and guards concurrent grants.
	GrantVersion int64 `json:"-"`
}

// BoosterTransaction is one entry of the append-only purchase log.
type BoosterTransaction struct {
	Kind          BoosterKind `json:"kind"`
	Quantity      int64       `json:"quantity"`
	TransactionID string      `json:"transactionId"`
	Timestamp     int64       `json:"timestamp"`
}

// GrantUpdate is the set of fields written by a single reward grant.
type GrantUpdate struct {
	Channel           Channel
	GrantTime         int64
	ClaimsInPeriod    int
	LastGiftBoxUpdate int64
}

// Followed reports whether the one-time follow reward was already granted.
// Records written before the flag existed only carry lastFollowTime.
func (p *PlayerRecord) Followed() bool {
	return p != nil && (p.HasFollowed || p.LastFollowTime != nil)
}

// LastGrant returns the last grant time of a channel, or nil if never granted.
func (p *PlayerRecord) LastGrant(ch Channel) *time.Time {
	if p == nil {
		return nil
	}
	switch ch {
	case ChannelShare:
		return FromMillis(p.LastShareTime)
	case ChannelFollow:
		return FromMillis(p.LastFollowTime)
	case ChannelMiniApp:
		return FromMillis(p.LastMiniAppTime)
	}
	return nil
}

// ClaimWindowStart returns the anchor of the current claim window, or nil.
func (p *PlayerRecord) ClaimWindowStart() *time.Time {
	if p == nil {
		return nil
	}
	return FromMillis(p.LastGiftBoxUpdate)
}

// BoosterCount returns how many boosters of a kind the player holds.
func (p *PlayerRecord) BoosterCount(kind BoosterKind) int64 {
	if p == nil || p.Boosters == nil {
		return 0
	}
	return p.Boosters[kind.String()]
}

// Millis converts a time to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts optional epoch milliseconds to a time.
func FromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
