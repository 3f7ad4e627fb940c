package crisis

import (
	"net/http"

	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
)

func errUnavailable(feature string) *apperrors.AppError {
	return &apperrors.AppError{
		Err:        apperrors.ErrInternal,
		Message:    feature + " is not configured",
		Code:       "UNAVAILABLE",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}
