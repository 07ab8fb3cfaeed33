package service

import (
	"context"
	"time"

	"giftbox-rest-api/internal/events"
	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/metrics"
	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/repository"
	"giftbox-rest-api/internal/rewards"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Grant outcomes.
const (
	OutcomeGranted        = "Granted"
	OutcomeCooldownActive = "CooldownActive"
	OutcomeAlreadyGranted = "AlreadyGranted"
)

// DefaultMaxRetries bounds how often a grant re-reads after losing a race.
const DefaultMaxRetries = 5

// GrantResult is the outcome of a grant request. A negative outcome is not an error.
type GrantResult struct {
	Granted          bool          `json:"granted"`
	Outcome          string        `json:"outcome"`
	Channel          model.Channel `json:"channel"`
	ClaimsInPeriod   int           `json:"claimsInPeriod"`
	RemainingClaims  int           `json:"remainingClaims"`
	NextEligibleTime *time.Time    `json:"nextEligibleTime,omitempty"`
	TimeUntilNext    time.Duration `json:"-"`
}

// EligibilityResult is the read-only view of one channel.
type EligibilityResult struct {
	Channel       model.Channel `json:"channel"`
	CanClaim      bool          `json:"canClaim"`
	TimeUntilNext time.Duration `json:"-"`
	LastGrantTime *time.Time    `json:"lastGrantTime,omitempty"`
}

// ClaimStatus is the player's current claim budget.
type ClaimStatus struct {
	ClaimsInPeriod  int        `json:"claimsInPeriod"`
	RemainingClaims int        `json:"remainingClaims"`
	Cap             int        `json:"cap"`
	WindowResetsAt  *time.Time `json:"windowResetsAt,omitempty"`
}

// RewardService grants channel rewards into the shared claim window.
type RewardService struct {
	repo       repository.PlayerRepository
	policy     rewards.Policy
	publisher  events.Publisher
	maxRetries int
	now        func() time.Time
}

// NewRewardService creates a reward service.
func NewRewardService(repo repository.PlayerRepository, policy rewards.Policy, publisher events.Publisher, maxRetries int) *RewardService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RewardService{
		repo:       repo,
		policy:     policy,
		publisher:  publisher,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

func validateFID(fid int64) error {
	if fid <= 0 {
		return invalid("fid", "must be a positive integer")
	}
	return nil
}

func claimState(p *model.PlayerRecord) rewards.ClaimState {
	if p == nil {
		return rewards.ClaimState{}
	}
	return rewards.ClaimState{Count: p.GiftBoxClaimsInPeriod, LastUpdate: p.ClaimWindowStart()}
}

// Grant awards a channel's reward if the player is eligible. The eligibility
// check and the write are tied together by the record's grant version: if
// another grant lands in between, the record is re-read and re-evaluated.
func (s *RewardService) Grant(ctx context.Context, fid int64, ch model.Channel) (*GrantResult, error) {
	if err := validateFID(fid); err != nil {
		return nil, err
	}
	cp, err := s.policy.Channel(ch)
	if err != nil {
		return nil, invalid("channel", "%v", err)
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		player, err := s.repo.GetPlayer(ctx, fid)
		if err != nil {
			metrics.RewardGrants.WithLabelValues(string(ch), "error").Inc()
			return nil, persistence("load player", err)
		}

		now := s.now()
		state := claimState(player)

		if denied := s.denied(player, cp, state, now); denied != nil {
			metrics.RewardGrants.WithLabelValues(string(ch), denied.Outcome).Inc()
			return denied, nil
		}

		next := rewards.ApplyGrant(state, cp.GrantSize, now, s.policy.Window)
		grantTime := rewards.Advance(player.LastGrant(ch), now)

		var version int64
		if player != nil {
			version = player.GrantVersion
		}

		err = s.repo.ApplyGrant(ctx, fid, version, model.GrantUpdate{
			Channel:           ch,
			GrantTime:         model.Millis(grantTime),
			ClaimsInPeriod:    next.Count,
			LastGiftBoxUpdate: model.Millis(*next.LastUpdate),
		})
		if errors.Is(err, repository.ErrGrantConflict) {
			logger.Debug("grant lost race, retrying",
				zap.Int64("fid", fid), zap.String("channel", string(ch)), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			metrics.RewardGrants.WithLabelValues(string(ch), "error").Inc()
			return nil, persistence("apply grant", err)
		}

		result := &GrantResult{
			Granted:         true,
			Outcome:         OutcomeGranted,
			Channel:         ch,
			ClaimsInPeriod:  next.Count,
			RemainingClaims: rewards.Remaining(next.Count, s.policy.Cap),
		}
		if ch.Timed() {
			nextTime := grantTime.Add(cp.Cooldown)
			result.NextEligibleTime = &nextTime
			result.TimeUntilNext = cp.Cooldown
		}

		metrics.RewardGrants.WithLabelValues(string(ch), OutcomeGranted).Inc()
		publishEvent(ctx, s.publisher, events.Event{
			Type:       events.RewardGranted,
			FID:        fid,
			OccurredAt: now,
			Data: map[string]interface{}{
				"channel":        string(ch),
				"grantSize":      cp.GrantSize,
				"claimsInPeriod": next.Count,
			},
		})
		logger.Info("reward granted",
			zap.Int64("fid", fid), zap.String("channel", string(ch)), zap.Int("claims", next.Count))
		return result, nil
	}

	metrics.RewardGrants.WithLabelValues(string(ch), "conflict").Inc()
	return nil, persistence("apply grant", errors.Wrapf(repository.ErrGrantConflict, "gave up after %d attempts", s.maxRetries+1))
}

// denied returns the negative result for an ineligible player, or nil.
func (s *RewardService) denied(player *model.PlayerRecord, cp rewards.ChannelPolicy, state rewards.ClaimState, now time.Time) *GrantResult {
	count := rewards.EffectiveCount(state, now, s.policy.Window)
	result := &GrantResult{
		Channel:         cp.Channel,
		ClaimsInPeriod:  count,
		RemainingClaims: rewards.Remaining(count, s.policy.Cap),
	}

	if !cp.Channel.Timed() {
		if player.Followed() {
			result.Outcome = OutcomeAlreadyGranted
			return result
		}
		return nil
	}

	e := rewards.CheckEligibility(player.LastGrant(cp.Channel), now, cp.Cooldown)
	if e.Eligible {
		return nil
	}
	next := now.Add(e.Remaining)
	result.Outcome = OutcomeCooldownActive
	result.NextEligibleTime = &next
	result.TimeUntilNext = e.Remaining
	return result
}

// Eligibility reports whether a channel can grant now, without writing.
func (s *RewardService) Eligibility(ctx context.Context, fid int64, ch model.Channel) (*EligibilityResult, error) {
	if err := validateFID(fid); err != nil {
		return nil, err
	}
	cp, err := s.policy.Channel(ch)
	if err != nil {
		return nil, invalid("channel", "%v", err)
	}

	player, err := s.repo.GetPlayer(ctx, fid)
	if err != nil {
		return nil, persistence("load player", err)
	}

	result := &EligibilityResult{Channel: ch, LastGrantTime: player.LastGrant(ch)}
	if !ch.Timed() {
		result.CanClaim = !player.Followed()
		return result, nil
	}

	e := rewards.CheckEligibility(result.LastGrantTime, s.now(), cp.Cooldown)
	result.CanClaim = e.Eligible
	result.TimeUntilNext = e.Remaining
	return result, nil
}

// ClaimStatus returns the claim budget as a grant at now would see it.
func (s *RewardService) ClaimStatus(ctx context.Context, fid int64) (*ClaimStatus, error) {
	if err := validateFID(fid); err != nil {
		return nil, err
	}

	player, err := s.repo.GetPlayer(ctx, fid)
	if err != nil {
		return nil, persistence("load player", err)
	}

	now := s.now()
	state := claimState(player)
	count := rewards.EffectiveCount(state, now, s.policy.Window)

	status := &ClaimStatus{
		ClaimsInPeriod:  count,
		RemainingClaims: rewards.Remaining(count, s.policy.Cap),
		Cap:             s.policy.Cap,
	}
	if count > 0 && state.LastUpdate != nil {
		resets := state.LastUpdate.Add(s.policy.Window)
		status.WindowResetsAt = &resets
	}
	return status, nil
}

func publishEvent(ctx context.Context, publisher events.Publisher, event events.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish ledger event", zap.String("type", event.Type), zap.Error(err))
	}
}
