package api

import (
	"errors"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
	"FinCast/pkg/linalg"
)

// toAppError maps domain errors onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrConfig):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, linalg.ErrNumericDegeneracy):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, models.ErrNotReady):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, linalg.ErrDimension):
		return xhttp.InternalError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
