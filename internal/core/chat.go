package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"medchat-proxy/internal/llm"
	"medchat-proxy/internal/logger"
	"medchat-proxy/internal/metrics"
	"medchat-proxy/pkg"
)

// ErrEmptyMessage is returned for a blank patient message.
var ErrEmptyMessage = errors.New("core: empty message")

// HistoryStore is the part of the history repository the pipeline needs.
type HistoryStore interface {
	Read(ctx context.Context, conversationID, patientID string, limit int) ([]pkg.Message, error)
	AppendTurn(ctx context.Context, conversationID, patientID, userText, assistantText string) error
}

// TurnNotifier is told about every persisted exchange.
type TurnNotifier interface {
	Notify(ctx context.Context, conversationID string) error
}

// ChatDeps lists the collaborators of a ChatService.  Notifier, Log and
// Metrics are optional.
type ChatDeps struct {
	Store        HistoryStore
	LLM          llm.Client
	Post         *PostProcessor
	Notifier     TurnNotifier
	Log          *logger.Logger
	Metrics      *metrics.Metrics
	HistoryLimit int
}

// ChatService orchestrates one exchange between a patient and the model:
// read history, assemble the prompt, call the model, post-process the reply
// and persist both sides.  Calls for the same conversation are serialized so
// each call sees the previous exchange in its history.
type ChatService struct {
	store        HistoryStore
	llm          llm.Client
	post         *PostProcessor
	notifier     TurnNotifier
	log          *logger.Logger
	metrics      *metrics.Metrics
	historyLimit int
	locks        *keyedMutex
	now          func() time.Time
}

// NewChatService constructs a new ChatService from its collaborators.
func NewChatService(d ChatDeps) *ChatService {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	post := d.Post
	if post == nil {
		post = NewPostProcessor(NewMatcher(DefaultRules))
	}
	return &ChatService{
		store:        d.Store,
		llm:          d.LLM,
		post:         post,
		notifier:     d.Notifier,
		log:          log.Component("pipeline"),
		metrics:      d.Metrics,
		historyLimit: d.HistoryLimit,
		locks:        newKeyedMutex(),
		now:          time.Now,
	}
}

// Handle runs the pipeline for one patient message.  It never returns an
// error: failures come back as a result with StatusError, an apology as
// ResponseText and the cause in Err.  A failed call writes nothing.
func (s *ChatService) Handle(ctx context.Context, message, conversationID, patientID, language string) pkg.PipelineResult {
	lang, err := LookupLanguage(language)
	if err != nil {
		return s.fail(conversationID, french, "unsupported", err)
	}
	if strings.TrimSpace(message) == "" {
		return s.fail(conversationID, lang, lang.Code, ErrEmptyMessage)
	}

	unlock := s.locks.Lock(conversationID + "\x00" + patientID)
	defer unlock()

	history, err := s.store.Read(ctx, conversationID, patientID, s.historyLimit)
	if err != nil {
		return s.fail(conversationID, lang, lang.Code, err)
	}

	prompt := assemble(lang, history, message)

	start := time.Now()
	raw, err := s.llm.Generate(ctx, prompt)
	s.recordModelCall(start, err)
	if err != nil {
		return s.fail(conversationID, lang, lang.Code, err)
	}

	reply, specialist := s.post.process(raw, message, lang)

	// Both sides of the exchange go in one transaction.
	if err := s.store.AppendTurn(ctx, conversationID, patientID, message, reply); err != nil {
		return s.fail(conversationID, lang, lang.Code, err)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, conversationID); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("notify failed")
		}
	}
	if s.metrics != nil {
		s.metrics.RecordPipelineResult(string(pkg.StatusSuccess), lang.Code)
		if specialist != "" {
			s.metrics.RecordSpecialist(specialist)
		}
	}
	s.log.Debug().
		Str("conversation_id", conversationID).
		Int("history", len(history)).
		Str("specialist", specialist).
		Msg("exchange stored")

	return pkg.PipelineResult{
		ResponseText:   reply,
		ConversationID: conversationID,
		Status:         pkg.StatusSuccess,
		CreatedAt:      s.now(),
	}
}

// History returns the stored conversation, oldest first.  limit <= 0 returns
// everything.
func (s *ChatService) History(ctx context.Context, conversationID, patientID string, limit int) ([]pkg.Message, error) {
	return s.store.Read(ctx, conversationID, patientID, limit)
}

// Model returns the name of the model behind the pipeline.
func (s *ChatService) Model() string { return s.llm.Model() }

// PingModel probes the model backend.
func (s *ChatService) PingModel(ctx context.Context) error { return s.llm.Ping(ctx) }

func (s *ChatService) fail(conversationID string, lang *Language, code string, err error) pkg.PipelineResult {
	s.log.Error().
		Err(err).
		Str("conversation_id", conversationID).
		Str("language", code).
		Msg("pipeline failed")
	if s.metrics != nil {
		s.metrics.RecordPipelineResult(string(pkg.StatusError), code)
	}
	return pkg.PipelineResult{
		ResponseText:   lang.Apology,
		ConversationID: conversationID,
		Status:         pkg.StatusError,
		CreatedAt:      s.now(),
		Err:            err,
	}
}

func (s *ChatService) recordModelCall(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, llm.ErrModelTimeout):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	s.metrics.RecordModelCall(status, time.Since(start))
}
