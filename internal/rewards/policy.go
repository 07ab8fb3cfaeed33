package rewards

import (
	"time"

	"giftbox-rest-api/internal/config"
	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
)

// ChannelPolicy describes how one reward channel grants.
type ChannelPolicy struct {
	Channel   model.Channel
	Cooldown  time.Duration // zero for one-time channels
	GrantSize int
}

// Policy is the full reward configuration shared by every channel.
type Policy struct {
	Window   time.Duration
	Cap      int
	channels map[model.Channel]ChannelPolicy
}

// Default values.
const (
	DefaultShareCooldown   = 6 * time.Hour
	DefaultMiniAppCooldown = 3 * time.Hour
	DefaultShareGrant      = 2
	DefaultMiniAppGrant    = 3
	DefaultFollowGrant     = 1
	DefaultClaimWindow     = 12 * time.Hour
	DefaultClaimCap        = 5
)

// DefaultPolicy returns the production reward policy.
func DefaultPolicy() Policy {
	return NewPolicy(config.RewardsConfig{
		ShareCooldown:   DefaultShareCooldown,
		MiniAppCooldown: DefaultMiniAppCooldown,
		ShareGrant:      DefaultShareGrant,
		MiniAppGrant:    DefaultMiniAppGrant,
		FollowGrant:     DefaultFollowGrant,
		ClaimWindow:     DefaultClaimWindow,
		ClaimCap:        DefaultClaimCap,
	})
}

// NewPolicy builds a policy from configuration.
func NewPolicy(cfg config.RewardsConfig) Policy {
	return Policy{
		Window: cfg.ClaimWindow,
		Cap:    cfg.ClaimCap,
		channels: map[model.Channel]ChannelPolicy{
			model.ChannelShare:   {Channel: model.ChannelShare, Cooldown: cfg.ShareCooldown, GrantSize: cfg.ShareGrant},
			model.ChannelMiniApp: {Channel: model.ChannelMiniApp, Cooldown: cfg.MiniAppCooldown, GrantSize: cfg.MiniAppGrant},
			model.ChannelFollow:  {Channel: model.ChannelFollow, GrantSize: cfg.FollowGrant},
		},
	}
}

// Channel returns the policy of a single channel.
func (p Policy) Channel(ch model.Channel) (ChannelPolicy, error) {
	cp, ok := p.channels[ch]
	if !ok {
		return ChannelPolicy{}, errors.Errorf("no policy for channel %q", ch)
	}
	return cp, nil
}
