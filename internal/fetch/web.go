package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/norma-cloud/knowdex/internal/domain"
)

const defaultUserAgent = "knowdex/1.0"

// maxBodySize caps how much of a response body is read, 32 MiB.
const maxBodySize = 32 << 20

// WebFetcher downloads a URL and extracts plain text. HTML is stripped to
// text; PDF responses go through text extraction; anything else text-ish is
// passed through.
type WebFetcher struct {
	client    *http.Client
	userAgent string
}

// NewWebFetcher creates a web fetcher with the given request timeout.
func NewWebFetcher(timeout time.Duration) *WebFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// Fetch downloads and extracts the document at url. Network faults and 5xx
// responses map to ErrTransientIO, a 404 to ErrDocumentNotFound.
func (f *WebFetcher) Fetch(ctx context.Context, url string) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %v: %w", url, err, domain.ErrTransientIO)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("get %s: %w", url, domain.ErrDocumentNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("get %s: status %d: %w", url, resp.StatusCode, domain.ErrTransientIO)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", url, err, domain.ErrTransientIO)
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	switch {
	case contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(url), ".pdf"):
		text, err := extractPDFText(body)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", url, err)
		}
		return &Content{Text: text, ContentType: "application/pdf"}, nil

	case contentType == "text/html" || contentType == "application/xhtml+xml" || contentType == "":
		raw := string(body)
		return &Content{
			Text:        stripHTML(raw),
			Title:       extractHTMLTitle(raw),
			ContentType: "text/html",
		}, nil

	case strings.HasPrefix(contentType, "text/"):
		return &Content{Text: string(body), ContentType: contentType}, nil

	default:
		return nil, fmt.Errorf("get %s: %s: %w", url, contentType, domain.ErrUnsupportedContent)
	}
}

// mediaType drops charset and other parameters from a Content-Type header.
func mediaType(header string) string {
	if i := strings.IndexByte(header, ';'); i >= 0 {
		header = header[:i]
	}
	return strings.ToLower(strings.TrimSpace(header))
}
