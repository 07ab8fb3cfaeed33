// Package events publishes ledger changes for downstream consumers.
// Publishing is best effort: a failed publish never undoes a ledger write.
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	RewardGranted    = "reward.granted"
	BoosterPurchased = "booster.purchased"
	BoosterUsed      = "booster.used"
)

// Event is one ledger change.
type Event struct {
	Type       string                 `json:"type"`
	FID        int64                  `json:"fid"`
	OccurredAt time.Time              `json:"occurredAt"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// Publisher delivers ledger events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (NopPublisher) Close() error                                 { return nil }

// MemoryPublisher keeps events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// Publish records the event.
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func (p *MemoryPublisher) Close() error { return nil }
