package rag

import (
	"fmt"
	"strings"

	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

const systemPrompt = `You are a compliance research assistant. Answer strictly from the ` +
	`provided context excerpts. When the context does not contain the answer, say so ` +
	`plainly instead of guessing. Reference excerpts by their number, e.g. [2].`

const contextDelimiter = "\n---\n"

// buildContextText assembles the numbered excerpt block. Each excerpt is
// headed by its ordinal and source attribution so the model can cite it
// back. The same text is surfaced on the answer for client-side display.
func buildContextText(matches []vectorstore.Match) string {
	var b strings.Builder

	for i, m := range matches {
		meta := m.Record.Meta

		fmt.Fprintf(&b, "[%d] %s", i+1, headerLine(meta.Title, meta.Section, meta.Source))
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(meta.Text))
		b.WriteString("\n")
		if i < len(matches)-1 {
			b.WriteString(contextDelimiter)
		}
	}
	return b.String()
}

// buildUserPrompt is the excerpt block followed by the question.
func buildUserPrompt(question string, matches []vectorstore.Match) string {
	var b strings.Builder

	b.WriteString("Context excerpts:\n\n")
	b.WriteString(buildContextText(matches))

	b.WriteString("\n\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nAnswer based only on the context excerpts above.")
	return b.String()
}

// headerLine renders "Title, Section (Source)" omitting whatever is absent.
func headerLine(title, section, source string) string {
	parts := make([]string, 0, 2)
	if title != "" {
		parts = append(parts, title)
	}
	if section != "" {
		parts = append(parts, section)
	}

	head := strings.Join(parts, ", ")
	if head == "" {
		head = "Untitled excerpt"
	}
	if source != "" {
		head += " (" + source + ")"
	}
	return head
}
