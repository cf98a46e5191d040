// Package chi is the HTTP API surface: search, RAG answers, document
// ingestion, and the feed registry.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/feed"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	healthuc "github.com/norma-cloud/knowdex/internal/usecase/health"
	ingestuc "github.com/norma-cloud/knowdex/internal/usecase/ingest"
	raguc "github.com/norma-cloud/knowdex/internal/usecase/rag"
	scheduleruc "github.com/norma-cloud/knowdex/internal/usecase/scheduler"
	searchuc "github.com/norma-cloud/knowdex/internal/usecase/search"
	"github.com/norma-cloud/knowdex/internal/version"
)

// Server wires the usecases behind the HTTP routes.
type Server struct {
	search        *searchuc.Service
	rag           *raguc.Service
	ingest        *ingestuc.Service
	scheduler     *scheduleruc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	rag *raguc.Service,
	ingest *ingestuc.Service,
	scheduler *scheduleruc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:    search,
		rag:       rag,
		ingest:    ingest,
		scheduler: scheduler,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		validationHandler,
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrFeedNotFound, http.StatusNotFound, CodeFeedNotFound),
		sentinelHandler(domain.ErrRecordNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrInvalidFilter, http.StatusBadRequest, CodeInvalidFilter),
		sentinelHandler(domain.ErrInvalidCron, http.StatusBadRequest, CodeInvalidCron),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrInvalidMetadata, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, CodeGenerationProviderError),
		sentinelHandler(domain.ErrTransientIO, http.StatusBadGateway, CodeUpstreamUnavailable),
	}
	return s
}

// Routes mounts every handler on a fresh router. Middlewares are applied by
// the caller so tests can mount bare routes.
func (s *Server) Routes() chirouter.Router {
	r := chirouter.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chirouter.Router) {
		r.Post("/search", s.handleSearch)

		r.Post("/rag/query", s.handleRAGQuery)
		r.Post("/rag/stream", s.handleRAGStream)

		r.Post("/documents", s.handleIngestDocument)
		r.Post("/documents/batch", s.handleIngestBatch)
		r.Put("/documents/{documentID}", s.handleUpdateDocument)
		r.Delete("/documents/{documentID}", s.handleDeleteDocument)

		r.Post("/feeds", s.handleRegisterFeed)
		r.Get("/feeds", s.handleListFeeds)
		r.Get("/feeds/stats", s.handleFeedStats)
		r.Post("/feeds/process-all", s.handleProcessAllFeeds)
		r.Get("/feeds/{feedID}", s.handleGetFeed)
		r.Delete("/feeds/{feedID}", s.handleUnregisterFeed)
		r.Post("/feeds/{feedID}/enable", s.handleSetFeedEnabled)
		r.Post("/feeds/{feedID}/process", s.handleProcessFeed)
	})

	return r
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// --- health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":  report.Status,
		"checks":  report.Checks,
		"version": version.Version,
	})
}

// --- search ---

type searchRequest struct {
	Query    string          `json:"query"`
	TopK     int             `json:"topK,omitempty"`
	Filter   json.RawMessage `json:"filter,omitempty"`
	MinScore *float64        `json:"minScore,omitempty"`
}

type searchResultItem struct {
	ID    string         `json:"id"`
	Score float64        `json:"score"`
	Meta  recordMetadata `json:"metadata"`
	Text  string         `json:"text"`
}

type searchResponse struct {
	Results          []searchResultItem `json:"results"`
	TotalResults     int                `json:"totalResults"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	f, err := filter.Parse(req.Filter)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.search.Search(r.Context(), searchuc.Request{
		Query:    req.Query,
		TopK:     req.TopK,
		Filter:   f,
		MinScore: req.MinScore,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]searchResultItem, len(resp.Results))
	for i, res := range resp.Results {
		items[i] = searchResultItem{
			ID:    res.ID,
			Score: res.Score,
			Meta:  recordMetadataToAPI(&res.Meta),
			Text:  res.Meta.Text,
		}
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Results:          items,
		TotalResults:     resp.TotalResults,
		ProcessingTimeMs: resp.ProcessingTimeMs,
	})
}

// --- rag ---

type ragRequest struct {
	Question string `json:"question"`
	// History is prior conversation turns, oldest first.
	History   []chatMessage   `json:"conversationHistory,omitempty"`
	TopK      int             `json:"topK,omitempty"`
	MinScore  *float64        `json:"minScore,omitempty"`
	Filter    json.RawMessage `json:"filter,omitempty"`
	MaxTokens int             `json:"maxTokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) ragRequestFromBody(w http.ResponseWriter, r *http.Request) (*raguc.Request, bool) {
	var req ragRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}

	f, err := filter.Parse(req.Filter)
	if err != nil {
		s.handleDomainError(w, err)
		return nil, false
	}

	history := make([]domain.Message, 0, len(req.History))
	for _, m := range req.History {
		history = append(history, domain.Message{Role: m.Role, Content: m.Content})
	}

	return &raguc.Request{
		Question:  req.Question,
		History:   history,
		TopK:      req.TopK,
		MinScore:  req.MinScore,
		Filter:    f,
		MaxTokens: req.MaxTokens,
	}, true
}

func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ragRequestFromBody(w, r)
	if !ok {
		return
	}

	answer, err := s.rag.Query(r.Context(), *req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// handleRAGStream streams the answer as server-sent events. Each rag.Event
// is one SSE data frame; the done event terminates the stream.
func (s *Server) handleRAGStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.ragRequestFromBody(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "streaming unsupported")
		return
	}

	events, err := s.rag.QueryStream(r.Context(), *req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for ev := range events {
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if err := enc.Encode(ev); err != nil {
			return
		}
		// json.Encoder already appended one newline; SSE frames need a blank
		// line after the data field.
		if _, err := w.Write([]byte("\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}

// --- documents ---

type documentMetadataRequest struct {
	DocumentID    string    `json:"documentId"`
	Title         string    `json:"title"`
	Source        string    `json:"source"`
	URL           string    `json:"url,omitempty"`
	SourceURL     string    `json:"sourceUrl,omitempty"`
	DocumentType  string    `json:"documentType,omitempty"`
	Version       string    `json:"version,omitempty"`
	PublishDate   time.Time `json:"publishDate,omitzero"`
	Language      string    `json:"language,omitempty"`
	Priority      string    `json:"priority,omitempty"`
	Scope         string    `json:"scope,omitempty"`
	TrustedSource bool      `json:"trustedSource,omitempty"`
}

func (m *documentMetadataRequest) toDomain() domain.DocumentMetadata {
	return domain.DocumentMetadata{
		DocumentID:    m.DocumentID,
		Title:         m.Title,
		Source:        m.Source,
		URL:           m.URL,
		SourceURL:     m.SourceURL,
		DocumentType:  domain.DocumentType(m.DocumentType),
		Version:       m.Version,
		PublishDate:   m.PublishDate,
		Language:      m.Language,
		Priority:      domain.Priority(m.Priority),
		Scope:         m.Scope,
		TrustedSource: m.TrustedSource,
	}
}

type ingestDocumentRequest struct {
	Metadata     documentMetadataRequest `json:"metadata"`
	Text         string                  `json:"text"`
	SkipExisting bool                    `json:"skipExisting,omitempty"`
}

type ingestDocumentResponse struct {
	DocumentID   string `json:"documentId"`
	ChunksStored int    `json:"chunksStored"`
	Skipped      bool   `json:"skipped"`
}

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.ingest.Ingest(r.Context(),
		ingestuc.Document{Metadata: req.Metadata.toDomain(), Text: req.Text},
		ingestuc.Options{SkipExisting: req.SkipExisting})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, ingestDocumentResponse{
		DocumentID:   res.DocumentID,
		ChunksStored: res.ChunksStored,
		Skipped:      res.Skipped,
	})
}

type ingestBatchRequest struct {
	Documents []struct {
		Metadata documentMetadataRequest `json:"metadata"`
		Text     string                  `json:"text"`
	} `json:"documents"`
	SkipExisting bool `json:"skipExisting,omitempty"`
}

type batchResultItem struct {
	DocumentID   string         `json:"documentId"`
	ChunksStored int            `json:"chunksStored,omitempty"`
	Skipped      bool           `json:"skipped,omitempty"`
	Error        *ErrorResponse `json:"error,omitempty"`
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req ingestBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "documents is empty")
		return
	}

	docs := make([]ingestuc.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = ingestuc.Document{Metadata: d.Metadata.toDomain(), Text: d.Text}
	}

	results := s.ingest.IngestBatch(r.Context(), docs, ingestuc.Options{SkipExisting: req.SkipExisting})

	items := make([]batchResultItem, len(results))
	for i, res := range results {
		items[i] = batchResultItem{
			DocumentID:   res.DocumentID,
			ChunksStored: res.Result.ChunksStored,
			Skipped:      res.Result.Skipped,
		}
		if res.Err != nil {
			items[i].Error = batchError(res.Err)
		}
	}

	writeJSON(w, http.StatusMultiStatus, map[string]any{"results": items})
}

// batchError renders one failed batch slot without aborting the response.
func batchError(err error) *ErrorResponse {
	resp := &ErrorResponse{
		Code:    batchErrorCode(err),
		Message: safeDomainMessage(err),
	}
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		resp.Violations = vErr.Violations
	}
	return resp
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chirouter.URLParam(r, "documentID")

	var req ingestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Metadata.DocumentID == "" {
		req.Metadata.DocumentID = documentID
	}
	if req.Metadata.DocumentID != documentID {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			"documentId in body does not match the path")
		return
	}

	res, err := s.ingest.Update(r.Context(),
		ingestuc.Document{Metadata: req.Metadata.toDomain(), Text: req.Text})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestDocumentResponse{
		DocumentID:   res.DocumentID,
		ChunksStored: res.ChunksStored,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chirouter.URLParam(r, "documentID")

	removed, err := s.ingest.Delete(r.Context(), documentID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documentId":    documentID,
		"chunksRemoved": removed,
	})
}

// --- feeds ---

type registerFeedRequest struct {
	URL          string `json:"url"`
	Name         string `json:"name"`
	DocumentType string `json:"documentType,omitempty"`
	Source       string `json:"source,omitempty"`
	Priority     string `json:"priority,omitempty"`
	Scope        string `json:"scope,omitempty"`
	Enabled      *bool  `json:"enabled,omitempty"`
	// UpdateInterval is minutes between checks, a convenience alternative to
	// CronExpression. An explicit cron expression wins over the interval.
	UpdateInterval int    `json:"updateInterval,omitempty"`
	CronExpression string `json:"cronExpression,omitempty"`
}

// cron derives the schedule: the explicit expression when given, otherwise
// an every-N-minutes expression from UpdateInterval.
func (r *registerFeedRequest) cron() string {
	if r.CronExpression != "" || r.UpdateInterval <= 0 {
		return r.CronExpression
	}
	return fmt.Sprintf("*/%d * * * *", r.UpdateInterval)
}

func (s *Server) handleRegisterFeed(w http.ResponseWriter, r *http.Request) {
	var req registerFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	cfg := feed.Config{
		URL:          req.URL,
		Name:         req.Name,
		DocumentType: domain.DocumentType(req.DocumentType),
		Source:       req.Source,
		Priority:     domain.Priority(req.Priority),
		Scope:        req.Scope,
		Enabled:      enabled,
	}

	registered, err := s.scheduler.Register(r.Context(), cfg, req.cron())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds := s.scheduler.List()
	writeJSON(w, http.StatusOK, map[string]any{"feeds": feeds})
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	f, err := s.scheduler.Get(chirouter.URLParam(r, "feedID"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleUnregisterFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chirouter.URLParam(r, "feedID")
	if err := s.scheduler.Unregister(r.Context(), feedID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetFeedEnabled(w http.ResponseWriter, r *http.Request) {
	feedID := chirouter.URLParam(r, "feedID")

	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := s.scheduler.SetEnabled(r.Context(), feedID, req.Enabled); err != nil {
		s.handleDomainError(w, err)
		return
	}

	f, err := s.scheduler.Get(feedID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleProcessFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chirouter.URLParam(r, "feedID")

	res, err := s.scheduler.ProcessFeed(r.Context(), feedID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcessAllFeeds(w http.ResponseWriter, r *http.Request) {
	results := s.scheduler.ProcessAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleFeedStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Stats())
}

// --- shared DTO mapping ---

// recordMetadata is the API rendering of a chunk's metadata.
type recordMetadata struct {
	DocumentID    string    `json:"documentId"`
	ChunkIndex    int       `json:"chunkIndex"`
	Section       string    `json:"section,omitempty"`
	Title         string    `json:"title,omitempty"`
	Source        string    `json:"source,omitempty"`
	URL           string    `json:"url,omitempty"`
	DocumentType  string    `json:"documentType,omitempty"`
	Version       string    `json:"version,omitempty"`
	PublishDate   time.Time `json:"publishDate,omitzero"`
	Language      string    `json:"language,omitempty"`
	Priority      string    `json:"priority,omitempty"`
	Scope         string    `json:"scope,omitempty"`
	TrustedSource bool      `json:"trustedSource"`
}

func recordMetadataToAPI(m *domain.RecordMetadata) recordMetadata {
	return recordMetadata{
		DocumentID:    m.DocumentID,
		ChunkIndex:    m.ChunkIndex,
		Section:       m.Section,
		Title:         m.Title,
		Source:        m.Source,
		URL:           m.URL,
		DocumentType:  string(m.DocumentType),
		Version:       m.Version,
		PublishDate:   m.PublishDate,
		Language:      m.Language,
		Priority:      string(m.Priority),
		Scope:         m.Scope,
		TrustedSource: m.TrustedSource,
	}
}

func batchErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, domain.ErrInvalidMetadata):
		return CodeValidationFailed
	case errors.Is(err, domain.ErrDocumentNotFound):
		return CodeDocumentNotFound
	case errors.Is(err, domain.ErrVectorDimMismatch):
		return CodeVectorDimMismatch
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		return CodeEmbeddingProviderError
	case errors.Is(err, domain.ErrTransientIO):
		return CodeUpstreamUnavailable
	default:
		return CodeInternalError
	}
}
