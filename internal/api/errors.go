package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/codemind/reviewhub/internal/service"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

// fromServiceError maps the service taxonomy onto HTTP responses.
// Validation, not-found and invariant messages are safe to expose;
// everything else gets a generic body.
func fromServiceError(err error) *ApiError {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return &ApiError{StatusCode: http.StatusBadRequest, Message: verr.Error()}
	}

	var perr *service.PermissionError
	if errors.As(err, &perr) {
		return NewForbiddenError()
	}

	var nferr *service.NotFoundError
	if errors.As(err, &nferr) {
		return &ApiError{StatusCode: http.StatusNotFound, Message: nferr.Error()}
	}

	var ierr *service.InvariantError
	if errors.As(err, &ierr) {
		return &ApiError{StatusCode: http.StatusConflict, Message: ierr.Error()}
	}

	var terr *service.TransientStoreError
	if errors.As(err, &terr) || errors.Is(err, context.DeadlineExceeded) {
		return &ApiError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    lower(http.StatusText(http.StatusServiceUnavailable)),
			Err:        err,
		}
	}

	return NewInternalServerError(err)
}
