package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoosterKind(t *testing.T) {
	tests := map[string]BoosterKind{
		"shuffle":     BoosterShuffle,
		" Hammer ":    BoosterHammer,
		"extra_moves": BoosterExtraMoves,
		"1":           BoosterShuffle,
		"3":           BoosterExtraMoves,
	}
	for in, want := range tests {
		got, err := ParseBoosterKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "0", "4", "-1", "300", "rocket"} {
		_, err := ParseBoosterKind(bad)
		assert.Error(t, err, bad)
	}
}

func TestBoosterKindJSON(t *testing.T) {
	var req struct {
		Kind BoosterKind `json:"boosterKind"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"boosterKind":2}`), &req))
	assert.Equal(t, BoosterHammer, req.Kind)

	require.NoError(t, json.Unmarshal([]byte(`{"boosterKind":"shuffle"}`), &req))
	assert.Equal(t, BoosterShuffle, req.Kind)

	assert.Error(t, json.Unmarshal([]byte(`{"boosterKind":1.5}`), &req))
	assert.Error(t, json.Unmarshal([]byte(`{"boosterKind":true}`), &req))

	out, err := json.Marshal(BoosterExtraMoves)
	require.NoError(t, err)
	assert.Equal(t, `"extra_moves"`, string(out))
}

func TestParseChannel(t *testing.T) {
	for in, want := range map[string]Channel{"share": ChannelShare, "FOLLOW": ChannelFollow, "mini-app": ChannelMiniApp, "miniapp": ChannelMiniApp} {
		got, err := ParseChannel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseChannel("tweet")
	assert.Error(t, err)
	assert.True(t, ChannelShare.Timed())
	assert.False(t, ChannelFollow.Timed())
}

func TestPlayerFollowed(t *testing.T) {
	var missing *PlayerRecord
	assert.False(t, missing.Followed())
	assert.False(t, (&PlayerRecord{}).Followed())
	assert.True(t, (&PlayerRecord{HasFollowed: true}).Followed())

	at := int64(1700000000000)
	assert.True(t, (&PlayerRecord{LastFollowTime: &at}).Followed())
}
