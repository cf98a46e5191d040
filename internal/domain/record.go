package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Metadata field keys shared by the filter language, the in-memory evaluator,
// and the Redis hash/index schema.
const (
	FieldText          = "text"
	FieldDocumentID    = "document_id"
	FieldChunkIndex    = "chunk_index"
	FieldSection       = "section"
	FieldTitle         = "title"
	FieldSource        = "source"
	FieldURL           = "url"
	FieldDocumentType  = "document_type"
	FieldVersion       = "version"
	FieldPublishDate   = "publish_date"
	FieldLanguage      = "language"
	FieldPriority      = "priority"
	FieldScope         = "scope"
	FieldTrustedSource = "trusted_source"
)

// RecordMetadata is the fixed metadata schema attached to every vector record.
type RecordMetadata struct {
	Text          string
	DocumentID    string
	ChunkIndex    int
	Section       string
	Title         string
	Source        string
	URL           string
	DocumentType  DocumentType
	Version       string
	PublishDate   time.Time
	Language      string
	Priority      Priority
	Scope         string
	TrustedSource bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tag returns the string value of a filterable tag field.
func (m *RecordMetadata) Tag(key string) (string, bool) {
	switch key {
	case FieldDocumentID:
		return m.DocumentID, true
	case FieldSection:
		return m.Section, true
	case FieldTitle:
		return m.Title, true
	case FieldSource:
		return m.Source, true
	case FieldURL:
		return m.URL, true
	case FieldDocumentType:
		return string(m.DocumentType), true
	case FieldVersion:
		return m.Version, true
	case FieldLanguage:
		return m.Language, true
	case FieldPriority:
		return string(m.Priority), true
	case FieldScope:
		return m.Scope, true
	case FieldTrustedSource:
		return strconv.FormatBool(m.TrustedSource), true
	case FieldText:
		return m.Text, true
	}
	return "", false
}

// Numeric returns the float value of a filterable numeric field.
// Publish dates are exposed as unix seconds for range filters.
func (m *RecordMetadata) Numeric(key string) (float64, bool) {
	switch key {
	case FieldChunkIndex:
		return float64(m.ChunkIndex), true
	case FieldPublishDate:
		if m.PublishDate.IsZero() {
			return 0, false
		}
		return float64(m.PublishDate.Unix()), true
	}
	return 0, false
}

// VectorRecord is one stored chunk embedding with its metadata.
type VectorRecord struct {
	ID     string
	Vector []float32
	Meta   RecordMetadata
}

// Validate checks the record against the configured embedding dimension.
// A mismatch is a fatal configuration error, not a per-record condition.
func (r *VectorRecord) Validate(dimension int) error {
	if r.ID == "" {
		return fmt.Errorf("record id is required: %w", ErrInvalidMetadata)
	}
	if len(r.Vector) != dimension {
		return fmt.Errorf("record %s has %d dims, index expects %d: %w",
			r.ID, len(r.Vector), dimension, ErrVectorDimMismatch)
	}
	return nil
}
