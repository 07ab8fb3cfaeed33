package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Channel identifies a reward-granting action.
type Channel string

const (
	ChannelShare   Channel = "share"
	ChannelFollow  Channel = "follow"
	ChannelMiniApp Channel = "miniapp"
)

// AllChannels lists every reward channel.
func AllChannels() []Channel {
	return []Channel{ChannelShare, ChannelFollow, ChannelMiniApp}
}

// ParseChannel accepts the canonical name and the spellings used by older clients.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "share":
		return ChannelShare, nil
	case "follow":
		return ChannelFollow, nil
	case "miniapp", "mini-app", "mini_app":
		return ChannelMiniApp, nil
	}
	return "", errors.Errorf("unknown reward channel %q", s)
}

// Timed reports whether the channel is gated by a cooldown rather than a one-time flag.
func (c Channel) Timed() bool {
	return c == ChannelShare || c == ChannelMiniApp
}
