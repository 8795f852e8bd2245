// Package client talks to a remote chat proxy over HTTP.  Every call returns
// a result value; transport failures are reported in the result rather than
// as a Go error so callers can always fall back to something sensible.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medchat-proxy/internal/logger"
	"medchat-proxy/pkg"
)

const (
	DefaultTimeout      = 120 * time.Second
	DefaultMaxRetries   = 3
	availabilityTimeout = 5 * time.Second
	maxBackoff          = 5 * time.Second
)

// TransportError describes a failed exchange with the proxy: the request did
// not complete, or the proxy answered with a non-2xx status.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("client: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("client: %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// retryable reports whether another attempt could succeed.
func (e *TransportError) retryable() bool {
	return e.Err != nil || e.StatusCode >= 500
}

// Options configures a Client.  Zero values pick the defaults.
type Options struct {
	PatientID  string
	Language   string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the wait before the second attempt; it grows linearly with
	// each retry up to five seconds.
	Backoff time.Duration
	Log     *logger.Logger
}

// Client is a remote chat client.  It remembers the current conversation so
// consecutive SendMessage calls continue the same exchange.
type Client struct {
	baseURL    string
	patientID  string
	language   string
	maxRetries int
	backoff    time.Duration
	http       *http.Client
	log        *logger.Logger

	mu             sync.Mutex
	conversationID string
}

// New returns a client for the proxy at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.PatientID == "" {
		opts.PatientID = pkg.DefaultPatientID
	}
	if opts.Language == "" {
		opts.Language = pkg.DefaultLanguage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		patientID:  opts.PatientID,
		language:   opts.Language,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		http:       &http.Client{Timeout: opts.Timeout},
		log:        opts.Log.Component("client"),
	}
}

// ChatResult is the outcome of SendMessage.
type ChatResult struct {
	Success        bool
	Response       string
	ConversationID string
	Timestamp      string
	Attempts       int
	Err            error
}

// HistoryResult is the outcome of GetHistory.  History is never nil.
type HistoryResult struct {
	Success        bool
	ConversationID string
	PatientID      string
	History        []pkg.HistoryEntry
	Err            error
}

// ConversationResult is the outcome of StartNewConversation.  On failure
// ConversationID holds a locally generated id.
type ConversationResult struct {
	Success        bool
	ConversationID string
	Message        string
	Err            error
}

// ConversationID returns the conversation the next message goes to, or ""
// before the first exchange.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

func (c *Client) setConversationID(id string) {
	c.mu.Lock()
	c.conversationID = id
	c.mu.Unlock()
}

// IsAvailable probes the proxy health endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()
	var health pkg.HealthResponse
	if err := c.do(ctx, "health", http.MethodGet, "/", nil, &health); err != nil {
		c.log.Warn().Err(err).Msg("proxy unavailable")
		return false
	}
	return true
}

// SendMessage sends one patient message in the current conversation,
// retrying transport failures and server errors with a growing pause.
func (c *Client) SendMessage(ctx context.Context, message string) ChatResult {
	req := pkg.ChatRequest{
		Message:        message,
		ConversationID: c.ConversationID(),
		PatientID:      c.patientID,
		Language:       c.language,
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		var resp pkg.ChatResponse
		err := c.do(ctx, "chat", http.MethodPost, "/chat", req, &resp)
		if err == nil {
			if resp.ConversationID != "" {
				c.setConversationID(resp.ConversationID)
			}
			return ChatResult{
				Success:        true,
				Response:       resp.Response,
				ConversationID: resp.ConversationID,
				Timestamp:      resp.Timestamp,
				Attempts:       attempt,
			}
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.maxRetries).Msg("chat request failed")

		te, ok := err.(*TransportError)
		if !ok || !te.retryable() || attempt == c.maxRetries {
			return ChatResult{ConversationID: req.ConversationID, Attempts: attempt, Err: err}
		}
		if err := sleep(ctx, c.backoffFor(attempt)); err != nil {
			return ChatResult{ConversationID: req.ConversationID, Attempts: attempt, Err: &TransportError{Op: "chat", Err: err}}
		}
	}
	return ChatResult{ConversationID: req.ConversationID, Attempts: c.maxRetries, Err: lastErr}
}

// StartNewConversation asks the proxy for a fresh conversation id and makes
// it current.  When the proxy cannot be reached a local id is used instead.
func (c *Client) StartNewConversation(ctx context.Context) ConversationResult {
	var resp pkg.ResetResponse
	err := c.do(ctx, "reset", http.MethodPost, "/reset-conversation", nil, &resp)
	if err == nil && resp.ConversationID == "" {
		err = &TransportError{Op: "reset", StatusCode: http.StatusOK, Body: "no conversation id in response"}
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("falling back to a local conversation id")
		id := uuid.NewString()
		c.setConversationID(id)
		return ConversationResult{ConversationID: id, Err: err}
	}
	c.setConversationID(resp.ConversationID)
	return ConversationResult{Success: true, ConversationID: resp.ConversationID, Message: resp.Message}
}

// GetHistory fetches the stored messages of a conversation.  An empty
// conversationID means the current one.
func (c *Client) GetHistory(ctx context.Context, conversationID string) HistoryResult {
	if conversationID == "" {
		conversationID = c.ConversationID()
	}
	path := "/conversations/" + url.PathEscape(conversationID) + "?patient_id=" + url.QueryEscape(c.patientID)

	var resp pkg.ConversationHistory
	if err := c.do(ctx, "history", http.MethodGet, path, nil, &resp); err != nil {
		c.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("history request failed")
		return HistoryResult{ConversationID: conversationID, PatientID: c.patientID, History: []pkg.HistoryEntry{}, Err: err}
	}
	if resp.History == nil {
		resp.History = []pkg.HistoryEntry{}
	}
	return HistoryResult{
		Success:        true,
		ConversationID: resp.ConversationID,
		PatientID:      resp.PatientID,
		History:        resp.History,
	}
}

func (c *Client) backoffFor(attempt int) time.Duration {
	d := c.backoff * time.Duration(attempt)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// do sends one request and decodes a 2xx JSON body into out.  Every failure
// comes back as a *TransportError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &TransportError{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(detail))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
