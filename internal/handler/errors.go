package handler

import (
	"net/http"
	"strconv"

	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/service"
	"giftbox-rest-api/pkg/apierror"
	"giftbox-rest-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// writeError maps a service error to its API error and writes it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	response.Error(w, toAPIError(r, err))
}

func toAPIError(r *http.Request, err error) *apierror.Error {
	var (
		validation  *service.ValidationError
		duplicate   *service.DuplicateTransactionError
		verify      *service.VerificationError
		persistence *service.PersistenceError
		apiErr      *apierror.Error
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &validation):
		return apierror.ValidationError("invalid request", apierror.FieldError{
			Field:   validation.Field,
			Message: validation.Message,
		})
	case errors.As(err, &duplicate):
		e := apierror.DuplicateTransaction("transaction already used").
			WithMeta("transactionId", duplicate.TransactionID)
		if duplicate.Prior != nil {
			e.WithMeta("priorFid", duplicate.Prior.FID).
				WithMeta("priorTimestamp", duplicate.Prior.Timestamp)
		}
		return e
	case errors.As(err, &verify):
		if verify.Retryable() {
			return apierror.RPCUnavailable("").WithMeta("reason", string(verify.Reason))
		}
		return apierror.VerificationFailed(string(verify.Reason))
	case errors.Is(err, service.ErrInsufficientInventory):
		return apierror.InsufficientInventory("not enough boosters")
	case errors.Is(err, service.ErrTokenNotFound), errors.Is(err, service.ErrTokenMalformed):
		return apierror.Unauthorized("Invalid or expired token")
	case errors.As(err, &persistence):
		logger.Error("persistence failure",
			zap.String("path", r.URL.Path), zap.String("op", persistence.Op), zap.Error(persistence.Err))
		return apierror.PersistenceFailure("")
	}

	logger.Error("unhandled error", zap.String("path", r.URL.Path), zap.Error(err))
	return apierror.InternalError("")
}

// fidParam parses the {fid} URL parameter.
func fidParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "fid")
	fid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || fid <= 0 {
		return 0, apierror.ValidationError("invalid fid", apierror.FieldError{
			Field:   "fid",
			Message: "must be a positive integer",
		})
	}
	return fid, nil
}

