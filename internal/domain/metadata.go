package domain

import (
	"fmt"
	"time"
)

// DocumentType classifies a source document.
type DocumentType string

// Known document types.
const (
	TypeStandard      DocumentType = "standard"
	TypeGuidance      DocumentType = "guidance"
	TypeExposureDraft DocumentType = "exposure-draft"
	TypeWebinar       DocumentType = "webinar"
	TypeCaseStudy     DocumentType = "case-study"
	TypeAuditGuide    DocumentType = "audit-guide"
	TypeOther         DocumentType = "other"
)

// IsValid reports whether t is a known document type.
func (t DocumentType) IsValid() bool {
	switch t {
	case TypeStandard, TypeGuidance, TypeExposureDraft, TypeWebinar,
		TypeCaseStudy, TypeAuditGuide, TypeOther:
		return true
	}
	return false
}

// Priority marks the retrieval priority of a document.
type Priority string

// Known priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// DocumentMetadata describes a logical source document before chunking.
// DocumentID is stable and caller-assigned; re-ingesting the same DocumentID
// is an update, never a duplicate.
type DocumentMetadata struct {
	DocumentID    string
	Title         string
	Source        string
	URL           string
	SourceURL     string
	DocumentType  DocumentType
	Version       string
	PublishDate   time.Time
	Language      string
	Priority      Priority
	Scope         string
	TrustedSource bool
}

// Validate checks the metadata and returns a ValidationError carrying ALL
// violations, not just the first one. Returns nil when the metadata is valid.
func (m *DocumentMetadata) Validate() error {
	var violations []string

	if m.DocumentID == "" {
		violations = append(violations, "documentId is required")
	}
	if m.Title == "" {
		violations = append(violations, "title is required")
	}
	if m.Source == "" {
		violations = append(violations, "source is required")
	}
	if m.DocumentType != "" && !m.DocumentType.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown documentType %q", m.DocumentType))
	}
	if m.Priority != "" && !m.Priority.IsValid() {
		violations = append(violations, fmt.Sprintf("unknown priority %q", m.Priority))
	}

	if len(violations) == 0 {
		return nil
	}
	return NewValidationError(violations)
}

// Normalize fills enum defaults on optional fields.
func (m *DocumentMetadata) Normalize() {
	if m.DocumentType == "" {
		m.DocumentType = TypeOther
	}
	if m.Priority == "" {
		m.Priority = PriorityMedium
	}
	if m.Language == "" {
		m.Language = "en"
	}
}
