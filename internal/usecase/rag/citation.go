package rag

import (
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

// Citation points a reader back at a retrieved source.
type Citation struct {
	Title   string `json:"title,omitempty"`
	Source  string `json:"source,omitempty"`
	Section string `json:"section,omitempty"`
	URL     string `json:"url,omitempty"`
}

// buildCitations collapses retrieved chunks into unique citations, keeping
// first-seen (best score) order. Identity is the URL when present, then
// source plus section, then the bare title. Chunks with no identity at all
// are uncitable and skipped.
func buildCitations(matches []vectorstore.Match) []Citation {
	seen := make(map[string]struct{}, len(matches))
	citations := make([]Citation, 0, len(matches))

	for _, m := range matches {
		meta := m.Record.Meta

		var key string
		switch {
		case meta.URL != "":
			key = "u:" + meta.URL
		case meta.Source != "" || meta.Section != "":
			key = "s:" + meta.Source + "\x00" + meta.Section
		case meta.Title != "":
			key = "t:" + meta.Title
		default:
			continue
		}

		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		citations = append(citations, Citation{
			Title:   meta.Title,
			Source:  meta.Source,
			Section: meta.Section,
			URL:     meta.URL,
		})
	}
	return citations
}
