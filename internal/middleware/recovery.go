package middleware

import (
	"fmt"
	"net/http"

	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/pkg/apierror"
	"giftbox-rest-api/pkg/response"

	"go.uber.org/zap"
)

// Recovery is a middleware that recovers from panics.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("panic", fmt.Sprint(rec)),
					zap.Stack("stack"),
				)
				response.Error(w, apierror.InternalError("internal server error"))
			}
		}()

		next.ServeHTTP(w, r)
	})
}
