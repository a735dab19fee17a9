package http

import (
	stderrors "errors"
	"net/http"

	"bintunet/internal/core/domain"
	"bintunet/pkg/errors"
)

// mapDomainError converts an engine or session error into the AppError the
// error middleware renders. maxStreams fills the quota message.
func mapDomainError(err error, maxStreams int) *errors.AppError {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrStreamNotFound):
		return errors.NewNotFoundError("stream")
	case stderrors.Is(err, domain.ErrQuotaExceeded):
		return errors.NewQuotaExceededError(maxStreams)
	case stderrors.Is(err, domain.ErrInvalidState):
		return errors.NewInvalidStateError(err.Error())
	case stderrors.Is(err, domain.ErrInvalidInput):
		return errors.NewInvalidInputError(err.Error())
	case stderrors.Is(err, domain.ErrAuthFailure), stderrors.Is(err, domain.ErrSessionNotFound):
		return errors.NewUnauthorizedError("invalid credentials")
	case stderrors.Is(err, domain.ErrEngineClosed):
		return errors.NewServiceUnavailableError("stream engine is shutting down")
	default:
		return errors.WrapError(err, errors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	}
}
