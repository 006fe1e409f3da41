package apperror

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON renders err as an ErrorResponse. Server errors log the cause
// at error level; client errors log only the code.
func WriteJSON(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	appErr := From(err)

	level := slog.LevelWarn
	attrs := []any{"code", appErr.Code, "status", appErr.StatusCode}
	if appErr.StatusCode >= http.StatusInternalServerError && appErr.Internal != nil {
		level = slog.LevelError
		attrs = append(attrs, "internal_error", appErr.Internal.Error())
	}
	logger.FromContext(ctx).Log(ctx, level, "request error", attrs...)

	if appErr.RetryAfter > 0 {
		secs := int(math.Ceil(appErr.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     appErr.Code,
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: logger.RequestID(ctx),
	})
}
