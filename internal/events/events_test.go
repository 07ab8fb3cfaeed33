package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublisherKeepsOrder(t *testing.T) {
	p := &MemoryPublisher{}
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, p.Publish(ctx, Event{Type: RewardGranted, FID: 1, OccurredAt: now}))
	require.NoError(t, p.Publish(ctx, Event{Type: BoosterUsed, FID: 1, OccurredAt: now}))

	got := p.Events()
	require.Len(t, got, 2)
	assert.Equal(t, RewardGranted, got[0].Type)
	assert.Equal(t, BoosterUsed, got[1].Type)

	// returned slice is a copy
	got[0].Type = "mutated"
	assert.Equal(t, RewardGranted, p.Events()[0].Type)
}

func TestNewKafkaPublisherRequiresTarget(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "ledger")
	assert.Error(t, err)

	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p, err := NewKafkaPublisher([]string{"localhost:9092"}, "ledger")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
