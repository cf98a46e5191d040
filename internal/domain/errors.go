package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrFeedNotFound signals an unknown feed id.
	ErrFeedNotFound = errors.New("feed not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrRecordNotFound signals a missing vector record.
	ErrRecordNotFound = errors.New("vector record not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch. This is a
	// configuration fault, never a per-record condition.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidMetadata signals rejected document metadata.
	ErrInvalidMetadata = errors.New("invalid metadata")
	// ErrInvalidFilter signals a malformed metadata filter.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidCron signals an unparseable cron expression.
	ErrInvalidCron = errors.New("invalid cron expression")
	// ErrInvalidChunking signals a chunk size/overlap configuration error.
	ErrInvalidChunking = errors.New("invalid chunking configuration")
	// ErrNotConnected signals use of a vector store before Connect.
	ErrNotConnected = errors.New("vector store not connected")
	// ErrTransientIO signals a retryable network or filesystem fault.
	ErrTransientIO = errors.New("transient io error")
	// ErrUnsupportedContent signals a content type no fetcher can extract.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a chat completion provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
)

// ValidationError reports every metadata violation at once so a caller can fix
// them all in a single pass.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidMetadata.Error(), strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidMetadata }

// NewValidationError creates a validation error from accumulated violations.
func NewValidationError(violations []string) error {
	return &ValidationError{Violations: violations}
}
