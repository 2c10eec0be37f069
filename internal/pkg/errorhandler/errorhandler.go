package errorhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mwork/moments-api/internal/pkg/logger"
	"github.com/mwork/moments-api/internal/pkg/response"
)

// Error kinds shared by domain packages.
const (
	KindNotFound        = "NOT_FOUND"
	KindAccessDenied    = "ACCESS_DENIED"
	KindAlreadyExists   = "ALREADY_EXISTS"
	KindInvalidState    = "INVALID_STATE"
	KindLimitExceeded   = "LIMIT_EXCEEDED"
	KindInvalidArgument = "INVALID_ARGUMENT"
)

// Kinded is implemented by domain errors that carry a transport-neutral kind.
type Kinded interface {
	error
	ErrorKind() string
}

// Detailed is implemented by errors that expose structured details.
type Detailed interface {
	error
	ErrorDetails() map[string]string
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindAlreadyExists, KindInvalidState:
		return http.StatusConflict
	case KindLimitExceeded:
		return http.StatusUnprocessableEntity
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Handle writes the response for a service error.
// Errors without a kind are logged and reported as 500.
func Handle(ctx context.Context, w http.ResponseWriter, err error) {
	var k Kinded
	if !errors.As(err, &k) {
		HandleError(ctx, w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}

	kind := k.ErrorKind()
	status := StatusFor(kind)

	var d Detailed
	if errors.As(err, &d) {
		details := d.ErrorDetails()
		logger.FromContext(ctx).Warn().
			Str("error_code", kind).
			Interface("error_details", details).
			Err(err).
			Msg("Request rejected")
		response.ErrorWithDetails(w, status, kind, err.Error(), details)
		return
	}

	if status == http.StatusInternalServerError {
		HandleError(ctx, w, status, "INTERNAL_ERROR", "An unexpected error occurred", err)
		return
	}

	logger.FromContext(ctx).Debug().Str("error_code", kind).Err(err).Msg("Request rejected")
	response.Error(w, status, kind, err.Error())
}

// HandleError logs the error with request context and sends a formatted error response
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	event := log.Error().
		Str("request_id", logger.RequestID(ctx)).
		Str("error_code", code).
		Str("error_message", message).
		Int("status_code", status)

	if err != nil {
		event.Err(err)
	}

	event.Msg("Request error")

	response.Error(w, status, code, message)
}

// HandlePanicError logs a recovered panic and sends a 500 response.
// The stack trace is logged, never returned to the client.
func HandlePanicError(ctx context.Context, w http.ResponseWriter, panicErr interface{}, stackTrace string) {
	log.Error().
		Str("request_id", logger.RequestID(ctx)).
		Interface("panic_error", panicErr).
		Str("panic_stack", stackTrace).
		Msg("Request panic error")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)

	resp := response.Response{
		Success: false,
		Error: &response.ErrorInfo{
			Code:    "PANIC_ERROR",
			Message: "Internal server panic",
		},
	}

	json.NewEncoder(w).Encode(resp)
}
