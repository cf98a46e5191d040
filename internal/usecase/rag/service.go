// Package rag orchestrates retrieval-augmented answers: retrieve, prompt,
// generate, cite.
package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/norma-cloud/knowdex/internal/domain"
	"github.com/norma-cloud/knowdex/internal/domain/filter"
	"github.com/norma-cloud/knowdex/internal/logger"
	"github.com/norma-cloud/knowdex/internal/vectorstore"
)

// DefaultTopK is how many chunks feed the prompt when a request leaves it
// unset.
const DefaultTopK = 5

// relatedTopK caps the best-effort cross-reference lookup.
const relatedTopK = 10

// Confidence blends retrieval strength with source reliability.
const (
	retrievalWeight   = 0.7
	reliabilityWeight = 0.3
)

// noAnswerText is returned when retrieval finds nothing above the floor.
const noAnswerText = "The knowledge base contains no information relevant to this question."

// Request is a RAG query.
type Request struct {
	Question string
	// History carries earlier conversation turns verbatim to the generator.
	History []domain.Message
	TopK    int
	Filter  filter.Filter
	// MinScore is the retrieval similarity floor. Nil applies the retriever
	// default; an explicit zero disables the floor.
	MinScore *float64
	// MaxTokens bounds the generated answer. Zero means provider default.
	MaxTokens int
}

// Answer is the orchestrated result.
type Answer struct {
	Text            string     `json:"text"`
	Citations       []Citation `json:"citations"`
	Confidence      float64    `json:"confidence"`
	ContextText     string     `json:"contextText,omitempty"`
	Related         []string   `json:"relevantDocuments,omitempty"`
	Model           string     `json:"model,omitempty"`
	RetrievedChunks int        `json:"retrieved_chunks"`
}

// EventType discriminates stream events.
type EventType string

// Stream event types. Context arrives first, then tokens, then exactly one
// done event unless an error ends the stream early.
const (
	EventContext EventType = "context"
	EventToken   EventType = "token"
	EventDone    EventType = "done"
	EventError   EventType = "error"
)

// Event is one item of a streamed answer.
type Event struct {
	Type EventType `json:"type"`
	// Context is set on the first event only.
	Context *Answer `json:"context,omitempty"`
	Token   string  `json:"token,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Service orchestrates retrieval-augmented generation.
type Service struct {
	retriever Retriever
	generator Generator
}

// New creates a RAG service.
func New(retriever Retriever, generator Generator) *Service {
	return &Service{retriever: retriever, generator: generator}
}

// Query answers a question from the knowledge base in one blocking call.
func (s *Service) Query(ctx context.Context, req Request) (*Answer, error) {
	if req.Question == "" {
		return nil, domain.NewValidationError([]string{"question is empty"})
	}

	matches, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &Answer{Text: noAnswerText, Citations: []Citation{}}, nil
	}

	result, err := s.generator.Complete(ctx, domain.GenerationRequest{
		System:    systemPrompt,
		History:   req.History,
		User:      buildUserPrompt(req.Question, matches),
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	answer := s.assemble(matches)
	answer.Text = result.Text
	answer.Model = result.Model
	answer.Related = s.findRelated(ctx, req.Question, matches)
	return answer, nil
}

// QueryStream answers a question as a stream of events. The first event
// carries the retrieval context, each token follows as its own event, and a
// done sentinel closes a successful stream. Cancellation is honored between
// every event.
func (s *Service) QueryStream(ctx context.Context, req Request) (<-chan Event, error) {
	if req.Question == "" {
		return nil, domain.NewValidationError([]string{"question is empty"})
	}

	matches, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan Event)

	go func() {
		defer close(out)

		if len(matches) == 0 {
			answer := &Answer{Text: noAnswerText, Citations: []Citation{}}
			if !send(ctx, out, Event{Type: EventContext, Context: answer}) {
				return
			}
			if !send(ctx, out, Event{Type: EventToken, Token: noAnswerText}) {
				return
			}
			send(ctx, out, Event{Type: EventDone})
			return
		}

		answer := s.assemble(matches)
		answer.Related = s.findRelated(ctx, req.Question, matches)
		if !send(ctx, out, Event{Type: EventContext, Context: answer}) {
			return
		}

		deltas, err := s.generator.Stream(ctx, domain.GenerationRequest{
			System:    systemPrompt,
			History:   req.History,
			User:      buildUserPrompt(req.Question, matches),
			MaxTokens: req.MaxTokens,
		})
		if err != nil {
			send(ctx, out, Event{Type: EventError, Error: err.Error()})
			return
		}

		for delta := range deltas {
			if delta.Err != nil {
				send(ctx, out, Event{Type: EventError, Error: delta.Err.Error()})
				return
			}
			if !send(ctx, out, Event{Type: EventToken, Token: delta.Token}) {
				return
			}
		}

		send(ctx, out, Event{Type: EventDone})
	}()

	return out, nil
}

// retrieve embeds the question once and fetches the prompt context, floored
// at the request's minimum score.
func (s *Service) retrieve(ctx context.Context, req Request) ([]vectorstore.Match, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	matches, err := s.retriever.TopMatches(ctx, req.Question, topK, req.MinScore, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	return matches, nil
}

// assemble builds the answer skeleton: citations, confidence, context text,
// chunk count.
func (s *Service) assemble(matches []vectorstore.Match) *Answer {
	return &Answer{
		Citations:       buildCitations(matches),
		Confidence:      confidence(matches),
		ContextText:     buildContextText(matches),
		RetrievedChunks: len(matches),
	}
}

// confidence blends the mean retrieval score with the mean source
// reliability, clamped to [0, 1]. Trusted sources count 1.0, others 0.5.
func confidence(matches []vectorstore.Match) float64 {
	if len(matches) == 0 {
		return 0
	}

	var scoreSum, reliabilitySum float64
	for _, m := range matches {
		scoreSum += m.Score
		if m.Record.Meta.TrustedSource {
			reliabilitySum += 1.0
		} else {
			reliabilitySum += 0.5
		}
	}

	n := float64(len(matches))
	c := retrievalWeight*(scoreSum/n) + reliabilityWeight*(reliabilitySum/n)

	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// findRelated is a best-effort cross-reference: documents similar to the
// question that the answer did not already cite. Failures degrade to an
// empty list, never to a failed query.
func (s *Service) findRelated(ctx context.Context, question string, cited []vectorstore.Match) []string {
	matches, err := s.retriever.TopMatches(ctx, question, relatedTopK, nil, nil)
	if err != nil {
		logger.FromContext(ctx).Debug("cross-reference lookup failed", zap.Error(err))
		return nil
	}

	citedDocs := make(map[string]struct{}, len(cited))
	for _, m := range cited {
		citedDocs[m.Record.Meta.DocumentID] = struct{}{}
	}

	seen := make(map[string]struct{})
	related := make([]string, 0, len(matches))
	for _, m := range matches {
		meta := m.Record.Meta
		if meta.Title == "" {
			continue
		}
		if _, isCited := citedDocs[meta.DocumentID]; isCited {
			continue
		}
		if _, dup := seen[meta.Title]; dup {
			continue
		}
		seen[meta.Title] = struct{}{}
		related = append(related, meta.Title)
	}
	return related
}

// send delivers an event unless the consumer cancelled.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
