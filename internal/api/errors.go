package api

import (
	"errors"
	"net/http"

	"github.com/abdul-hamid-achik/clearframe/internal/apperror"
	"github.com/abdul-hamid-achik/clearframe/internal/billing"
	"github.com/abdul-hamid-achik/clearframe/internal/dispatch"
	"github.com/abdul-hamid-achik/clearframe/internal/job"
)

// toAppError maps domain sentinels onto response errors.
func toAppError(err error) error {
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, job.ErrNotFound):
		return apperror.Wrap(err, apperror.ErrJobNotFound)
	case errors.Is(err, job.ErrStateConflict):
		return apperror.Wrap(err, apperror.ErrInvalidStatus)
	case errors.Is(err, job.ErrInvalidContentType):
		return apperror.Wrap(err, apperror.ErrInvalidFileType)
	case errors.Is(err, dispatch.ErrQueueFull), errors.Is(err, dispatch.ErrClosed):
		return apperror.Wrap(err, apperror.ErrQueueFull)
	case errors.Is(err, billing.ErrNoEntitlement):
		return apperror.Wrap(err, apperror.ErrEntitlementRequired)
	case errors.Is(err, billing.ErrInvalidRequest):
		return apperror.WrapWithMessage(err, "bad_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, billing.ErrNotConfigured):
		return apperror.Wrap(err, apperror.ErrServiceUnavailable)
	}
	return apperror.Wrap(err, apperror.ErrInternal)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apperror.WriteJSON(w, r, toAppError(err))
}
