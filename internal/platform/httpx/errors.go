// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/silaibook/silaibook/internal/shared"
)

// StatusFor maps the shared error taxonomy onto HTTP status codes.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, shared.ErrInsufficientStock):
		return http.StatusConflict, "Insufficient Stock"
	case errors.Is(err, shared.ErrIllegalTransition):
		return http.StatusConflict, "Illegal Transition"
	case errors.Is(err, shared.ErrOverpaymentRejected):
		return http.StatusUnprocessableEntity, "Overpayment Rejected"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "Conflict"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, title := StatusFor(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = err.Error()
	}
	JSON(w, status, ProblemDetail{
		Type:   "urn:silaibook:problem:" + shared.ErrorKind(err),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// Fail logs err at a level matching its status and writes the problem response.
func Fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if status, _ := StatusFor(err); status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), op, slog.Any("error", err))
	} else {
		logger.InfoContext(r.Context(), op+" rejected", slog.String("kind", shared.ErrorKind(err)), slog.Any("error", err))
	}
	RespondError(w, err)
}
