package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/norma-cloud/knowdex/internal/domain"
)

// FileFetcher reads documents from the local filesystem. Plain text and
// markdown are returned as-is; PDFs go through text extraction.
type FileFetcher struct{}

// NewFileFetcher creates a filesystem fetcher.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

// Fetch reads and extracts the file at path. A missing file maps to
// ErrDocumentNotFound; other filesystem faults are transient.
func (f *FileFetcher) Fetch(path string) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s: %w", path, domain.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("read %s: %v: %w", path, err, domain.ErrTransientIO)
	}

	title := fileTitle(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return &Content{Text: string(data), Title: title, ContentType: "text/plain"}, nil
	case ".pdf":
		text, err := extractPDFText(data)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", path, err)
		}
		return &Content{Text: text, Title: title, ContentType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("file %s: %w", path, domain.ErrUnsupportedContent)
	}
}

// fileTitle derives a readable title from the file name.
func fileTitle(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}
