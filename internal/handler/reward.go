package handler

import (
	"net/http"
	"time"

	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/service"
	"giftbox-rest-api/pkg/apierror"
	"giftbox-rest-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// RewardHandler handles reward grant and eligibility requests.
type RewardHandler struct {
	rewardService *service.RewardService
}

// NewRewardHandler creates a new reward handler.
func NewRewardHandler(rewardService *service.RewardService) *RewardHandler {
	return &RewardHandler{rewardService: rewardService}
}

// GrantResponse is the body of a grant reply. timeUntilNext is in milliseconds.
type GrantResponse struct {
	*service.GrantResult
	TimeUntilNextMs int64 `json:"timeUntilNext"`
}

// EligibilityResponse is the body of an eligibility reply. timeUntilNext is in milliseconds.
type EligibilityResponse struct {
	*service.EligibilityResult
	TimeUntilNextMs int64 `json:"timeUntilNext"`
}

func channelParam(r *http.Request) (model.Channel, error) {
	ch, err := model.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		return "", apierror.ValidationError("invalid channel", apierror.FieldError{
			Field:   "channel",
			Message: err.Error(),
		})
	}
	return ch, nil
}

// Grant handles POST /api/v1/players/{fid}/rewards/{channel}
func (h *RewardHandler) Grant(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ch, err := channelParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.rewardService.Grant(r.Context(), fid, ch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, GrantResponse{
		GrantResult:     result,
		TimeUntilNextMs: durationMs(result.TimeUntilNext),
	})
}

// Eligibility handles GET /api/v1/players/{fid}/rewards/{channel}
func (h *RewardHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ch, err := channelParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.rewardService.Eligibility(r.Context(), fid, ch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, EligibilityResponse{
		EligibilityResult: result,
		TimeUntilNextMs:   durationMs(result.TimeUntilNext),
	})
}

// Claims handles GET /api/v1/players/{fid}/claims
func (h *RewardHandler) Claims(w http.ResponseWriter, r *http.Request) {
	fid, err := fidParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.rewardService.ClaimStatus(r.Context(), fid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, status)
}

func durationMs(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}
