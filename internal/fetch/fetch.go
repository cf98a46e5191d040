// Package fetch retrieves document content from local files, web pages, and
// RSS feeds, and extracts plain text suitable for chunking.
package fetch

// Content is the extracted result of a fetch.
type Content struct {
	// Text is the extracted plain text.
	Text string
	// Title is the best-effort title (HTML <title>, feed item title, or the
	// file name). May be empty.
	Title string
	// ContentType is the source media type, e.g. "text/html" or
	// "application/pdf".
	ContentType string
}
