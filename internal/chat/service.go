// Package chat answers user messages grounded on the knowledge base.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mfenderov/multichat/internal/apiclient"
	"github.com/mfenderov/multichat/internal/knowledge"
	"github.com/mfenderov/multichat/internal/prompt"
	"github.com/mfenderov/multichat/internal/ratelimit"
	"github.com/mfenderov/multichat/pkg/models"
)

// State is a step of request processing.
type State int

const (
	StateReceived State = iota
	StateRateLimitChecked
	StateCredentialChecked
	StateKBResolved
	StatePromptBuilt
	StateAPICalled
	StateResponded
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateRateLimitChecked:
		return "rate_limit_checked"
	case StateCredentialChecked:
		return "credential_checked"
	case StateKBResolved:
		return "kb_resolved"
	case StatePromptBuilt:
		return "prompt_built"
	case StateAPICalled:
		return "api_called"
	case StateResponded:
		return "responded"
	default:
		return "unknown"
	}
}

// FAQ is a curated question and answer added to every language's knowledge.
type FAQ struct {
	Question string
	Answer   string
}

// Config holds chat service configuration.
type Config struct {
	MaxMessageLength  int
	Languages         []string
	TopN              int
	DefaultLanguage   string
	FallbackKnowledge map[string][]string
	FAQs              []FAQ
}

// Completer produces an assistant reply.
type Completer interface {
	Complete(ctx context.Context, apiKey, system, user string, opts apiclient.Options) (string, error)
}

// SnapshotLoader reads a cached knowledge base snapshot.
type SnapshotLoader interface {
	Load(ctx context.Context, language string) (*models.Snapshot, bool, error)
}

// RateLimiter admits or rejects a caller.
type RateLimiter interface {
	Check(ctx context.Context, identity string) (ratelimit.Decision, error)
}

// CredentialSource supplies the upstream API key.
type CredentialSource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticCredential is an API key read once from configuration.
type StaticCredential string

func (s StaticCredential) APIKey(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// Request is an incoming chat message.
type Request struct {
	Message  string
	Language string
	Identity string // rate limit identity, see ratelimit.Identity
}

// Result is a successful reply.
type Result struct {
	Message  string
	Language string
	Sources  []string // URLs of the chunks used to ground the reply
}

// Service wires validation, rate limiting, retrieval, prompting and the
// upstream call into one synchronous request flow.
type Service struct {
	config    Config
	limiter   RateLimiter
	creds     CredentialSource
	snapshots SnapshotLoader
	completer Completer
	languages LanguageResolver
}

// Option configures a Service.
type Option func(*Service)

// WithLanguageResolver overrides the default resolver.
func WithLanguageResolver(r LanguageResolver) Option {
	return func(s *Service) { s.languages = r }
}

// New creates a chat service.
func New(config Config, limiter RateLimiter, creds CredentialSource, snapshots SnapshotLoader, completer Completer, opts ...Option) *Service {
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = 1000
	}
	if len(config.Languages) == 0 {
		config.Languages = []string{"en", "ar", "es", "fr"}
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = config.Languages[0]
	}
	if config.TopN <= 0 {
		config.TopN = knowledge.DefaultTopN
	}

	s := &Service{
		config:    config,
		limiter:   limiter,
		creds:     creds,
		snapshots: snapshots,
		completer: completer,
		languages: DefaultResolver{Fallback: config.DefaultLanguage},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers req. Failures are returned as *Error.
func (s *Service) Ask(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.ask(ctx, req)
	requestDuration.Observe(time.Since(start).Seconds())

	var chatErr *Error
	if errors.As(err, &chatErr) {
		requestsTotal.WithLabelValues(string(chatErr.Kind)).Inc()
		slog.Debug("chat request failed", "kind", chatErr.Kind, "state", chatErr.State, "error", err)
		return Result{}, err
	}
	requestsTotal.WithLabelValues("success").Inc()
	return res, nil
}

func (s *Service) ask(ctx context.Context, req Request) (Result, error) {
	// Received
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Result{}, validationError("Message cannot be empty.")
	}
	if utf8.RuneCountInString(message) > s.config.MaxMessageLength {
		return Result{}, validationError(fmt.Sprintf("Message is too long (maximum %d characters).", s.config.MaxMessageLength))
	}
	language := s.languages.Resolve(ctx, req.Language)
	if !slices.Contains(s.config.Languages, language) {
		return Result{}, validationError(fmt.Sprintf("Unsupported language %q.", req.Language))
	}

	// RateLimitChecked
	decision, _ := s.limiter.Check(ctx, req.Identity)
	if !decision.Allowed {
		return Result{}, &Error{
			Kind:       KindRateLimited,
			Status:     http.StatusTooManyRequests,
			Message:    decision.Message(),
			State:      StateRateLimitChecked,
			RetryAfter: decision.RetryAfter(),
		}
	}

	// CredentialChecked
	apiKey, err := s.creds.APIKey(ctx)
	if err != nil || apiKey == "" {
		slog.Error("chat service has no API key configured", "error", err)
		return Result{}, &Error{
			Kind:    KindMissingCredential,
			Status:  http.StatusInternalServerError,
			Message: "The chat service is not configured. Please contact the site administrator.",
			State:   StateCredentialChecked,
			Err:     err,
		}
	}

	// KBResolved
	ranked := s.Relevant(ctx, message, language, s.config.TopN)
	relevantChunks.Observe(float64(len(ranked)))

	// PromptBuilt
	system := prompt.Build(language, ranked)

	// ApiCalled
	text, err := s.completer.Complete(ctx, apiKey, system, message, apiclient.Options{})
	if err != nil {
		msg := apiclient.GenericMessage
		var apiErr *apiclient.Error
		if errors.As(err, &apiErr) {
			msg = apiErr.UserMessage()
		}
		return Result{}, &Error{
			Kind:    KindUpstream,
			Status:  http.StatusInternalServerError,
			Message: msg,
			State:   StateAPICalled,
			Err:     err,
		}
	}

	// Responded
	return Result{Message: text, Language: language, Sources: sources(ranked)}, nil
}

// Relevant returns up to limit knowledge chunks for query in language. The
// cached snapshot is used when present, otherwise the configured fallback
// knowledge; curated FAQs are always included.
func (s *Service) Relevant(ctx context.Context, query, language string, limit int) []models.Chunk {
	return knowledge.Rank(query, s.candidates(ctx, language), limit)
}

func (s *Service) candidates(ctx context.Context, language string) []models.Chunk {
	var chunks []models.Chunk

	snap, ok, err := s.snapshots.Load(ctx, language)
	if err != nil {
		slog.Warn("failed to load knowledge base, using fallback", "language", language, "error", err)
	}

	switch {
	case ok && !snap.Empty():
		knowledgeSourceTotal.WithLabelValues("snapshot").Inc()
		chunks = append(chunks, snap.Chunks...)
	default:
		fallback := s.config.FallbackKnowledge[language]
		if len(fallback) == 0 {
			fallback = s.config.FallbackKnowledge[s.config.DefaultLanguage]
		}
		if len(fallback) > 0 {
			knowledgeSourceTotal.WithLabelValues("fallback").Inc()
		} else if len(s.config.FAQs) == 0 {
			knowledgeSourceTotal.WithLabelValues("none").Inc()
		}
		for _, text := range fallback {
			chunks = append(chunks, models.Chunk{Text: text, ContentHash: models.Hash(text)})
		}
	}

	for _, faq := range s.config.FAQs {
		text := "Q: " + faq.Question + " A: " + faq.Answer
		chunks = append(chunks, models.Chunk{Text: text, Title: faq.Question, ContentHash: models.Hash(text)})
	}
	return chunks
}

func sources(chunks []models.Chunk) []string {
	var out []string
	for _, c := range chunks {
		if c.SourceURL != "" && !slices.Contains(out, c.SourceURL) {
			out = append(out, c.SourceURL)
		}
	}
	return out
}
