package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrValidation = errors.New("validation failed")
	ErrDuplicate  = errors.New("duplicate entry")
)

// ValidationError carries per-field failures.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+": "+tag)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RetryAfterSeconds is advertised on retryable failures.
const RetryAfterSeconds = 2

// RespondError maps platform-level errors to RFC7807 responses. Domain handlers map their own
// errors first and fall back here.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		WriteProblem(w, ProblemDetail{
			Title:  Localize(r, "Validation Failed"),
			Status: http.StatusUnprocessableEntity,
			Detail: err.Error(),
			Code:   "validation_failed",
			Fields: verr.Fields,
		})
	case errors.Is(err, shared.ErrNotFound):
		LocalizedProblem(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		LocalizedProblem(w, r, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		LocalizedProblem(w, r, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, ErrDuplicate):
		LocalizedProblem(w, r, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrInvalidIdempotencyKey):
		LocalizedProblem(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case db.IsRetryable(err):
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
		LocalizedProblem(w, r, http.StatusServiceUnavailable, "Try Again", "the request could not be completed, retry it unchanged")
	default:
		LocalizedProblem(w, r, http.StatusInternalServerError, "Internal Error", "")
	}
}

// LocalizedProblem writes a problem with its title translated for the request.
func LocalizedProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	WriteProblem(w, ProblemDetail{Title: Localize(r, title), Status: status, Detail: detail})
}
