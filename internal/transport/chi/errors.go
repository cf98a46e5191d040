package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/norma-cloud/knowdex/internal/domain"
)

// ErrorCode is the machine-readable error discriminator in responses.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest              ErrorCode = "bad_request"
	CodeUnauthorized            ErrorCode = "unauthorized"
	CodeValidationFailed        ErrorCode = "validation_failed"
	CodeNotFound                ErrorCode = "not_found"
	CodeDocumentNotFound        ErrorCode = "document_not_found"
	CodeFeedNotFound            ErrorCode = "feed_not_found"
	CodeVectorDimMismatch       ErrorCode = "vector_dim_mismatch"
	CodeInvalidFilter           ErrorCode = "invalid_filter"
	CodeInvalidCron             ErrorCode = "invalid_cron"
	CodeEmbeddingProviderError  ErrorCode = "embedding_provider_error"
	CodeGenerationProviderError ErrorCode = "generation_provider_error"
	CodeUpstreamUnavailable     ErrorCode = "upstream_unavailable"
	CodeInternalError           ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Violations []string  `json:"violations,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}

	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrDocumentNotFound,
		domain.ErrFeedNotFound,
		domain.ErrRecordNotFound,
		domain.ErrVectorDimMismatch,
		domain.ErrInvalidMetadata,
		domain.ErrInvalidFilter,
		domain.ErrInvalidCron,
		domain.ErrInvalidChunking,
		domain.ErrTransientIO,
		domain.ErrUnsupportedContent,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// validationHandler renders ValidationError with the full violation list so a
// client can fix every problem in one pass.
func validationHandler(w http.ResponseWriter, err error, _ string) bool {
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:       CodeValidationFailed,
		Message:    "validation failed",
		Violations: vErr.Violations,
	})
	return true
}
