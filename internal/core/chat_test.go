package core

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"medchat-proxy/internal/db"
	"medchat-proxy/internal/llm"
	"medchat-proxy/pkg"
)

type memoryStore struct {
	mu       sync.Mutex
	messages []pkg.Message
	readErr  error
	writeErr error
}

func (s *memoryStore) Read(_ context.Context, conversationID, patientID string, limit int) ([]pkg.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	out := []pkg.Message{}
	for _, m := range s.messages {
		if m.ConversationID == conversationID && m.PatientID == patientID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memoryStore) AppendTurn(_ context.Context, conversationID, patientID, userText, assistantText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.messages = append(s.messages,
		pkg.Message{ConversationID: conversationID, PatientID: patientID, Text: userText, Sender: pkg.SenderUser},
		pkg.Message{ConversationID: conversationID, PatientID: patientID, Text: assistantText, Sender: pkg.SenderAssistant},
	)
	return nil
}

type stubLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts [][]llm.Message
}

func (s *stubLLM) Generate(_ context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, messages)
	return s.reply, s.err
}

func (s *stubLLM) Ping(context.Context) error { return s.err }

func (s *stubLLM) Model() string { return "stub" }

type countingNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (n *countingNotifier) Notify(_ context.Context, conversationID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, conversationID)
	return n.err
}

func newTestService(store HistoryStore, model llm.Client) *ChatService {
	return NewChatService(ChatDeps{Store: store, LLM: model, HistoryLimit: 20})
}

func TestHandle_Success(t *testing.T) {
	store := &memoryStore{}
	model := &stubLLM{reply: "Essayez de vous reposer."}
	s := newTestService(store, model)

	res := s.Handle(context.Background(), "J'ai mal à la tête", "c1", "p1", "fr")
	if res.Status != pkg.StatusSuccess {
		t.Fatalf("expected success, got %s (%v)", res.Status, res.Err)
	}
	if res.ConversationID != "c1" {
		t.Errorf("conversation id = %q", res.ConversationID)
	}
	for _, want := range []string{"**neurologue**", "professionnel de santé"} {
		if !strings.Contains(res.ResponseText, want) {
			t.Errorf("response missing %q: %q", want, res.ResponseText)
		}
	}
	if res.CreatedAt.IsZero() {
		t.Error("timestamp not set")
	}

	msgs, _ := store.Read(context.Background(), "c1", "p1", 0)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 stored messages, got %d", len(msgs))
	}
	if msgs[0].Text != "J'ai mal à la tête" || msgs[0].Sender != pkg.SenderUser {
		t.Errorf("first stored message = %+v", msgs[0])
	}
	if msgs[1].Text != res.ResponseText || msgs[1].Sender != pkg.SenderAssistant {
		t.Errorf("stored reply should be the post-processed text: %+v", msgs[1])
	}
}

func TestHandle_HistoryGrowsAndFeedsPrompt(t *testing.T) {
	store := &memoryStore{}
	model := &stubLLM{reply: "ok"}
	s := newTestService(store, model)

	const n = 4
	for i := 0; i < n; i++ {
		res := s.Handle(context.Background(), fmt.Sprintf("message %d", i), "c1", "p1", "fr")
		if res.Status != pkg.StatusSuccess {
			t.Fatalf("call %d failed: %v", i, res.Err)
		}
	}
	msgs, _ := store.Read(context.Background(), "c1", "p1", 0)
	if len(msgs) != 2*n {
		t.Fatalf("expected %d messages, got %d", 2*n, len(msgs))
	}
	for i, m := range msgs {
		want := pkg.SenderUser
		if i%2 == 1 {
			want = pkg.SenderAssistant
		}
		if m.Sender != want {
			t.Errorf("message %d sender = %s, want %s", i, m.Sender, want)
		}
	}
	// The last prompt holds the system prompt, the 6 earlier messages and the
	// new one.
	last := model.prompts[n-1]
	if len(last) != 1+2*(n-1)+1 {
		t.Fatalf("last prompt has %d messages", len(last))
	}
	if last[1].Content != "message 0" || last[len(last)-1].Content != fmt.Sprintf("message %d", n-1) {
		t.Errorf("unexpected prompt order: %+v", last)
	}
}

func TestHandle_ModelFailureWritesNothing(t *testing.T) {
	store := &memoryStore{}
	model := &stubLLM{err: llm.ErrModelUnavailable}
	s := newTestService(store, model)

	res := s.Handle(context.Background(), "bonjour", "c1", "p1", "fr")
	if res.Status != pkg.StatusError {
		t.Fatalf("expected error status, got %s", res.Status)
	}
	if !errors.Is(res.Err, llm.ErrModelUnavailable) {
		t.Errorf("cause = %v", res.Err)
	}
	if res.ResponseText != french.Apology {
		t.Errorf("response = %q", res.ResponseText)
	}
	if len(store.messages) != 0 {
		t.Fatalf("failed call stored %d messages", len(store.messages))
	}
}

func TestHandle_StoreFailures(t *testing.T) {
	readFail := &memoryStore{readErr: errors.New("read broke")}
	res := newTestService(readFail, &stubLLM{reply: "ok"}).Handle(context.Background(), "bonjour", "c1", "p1", "ar")
	if res.Status != pkg.StatusError || res.ResponseText != arabic.Apology {
		t.Errorf("read failure: %+v", res)
	}

	writeFail := &memoryStore{writeErr: errors.New("write broke")}
	res = newTestService(writeFail, &stubLLM{reply: "ok"}).Handle(context.Background(), "bonjour", "c1", "p1", "fr")
	if res.Status != pkg.StatusError || res.Err == nil {
		t.Errorf("write failure: %+v", res)
	}
}

func TestHandle_InvalidInput(t *testing.T) {
	store := &memoryStore{}
	model := &stubLLM{reply: "ok"}
	s := newTestService(store, model)

	res := s.Handle(context.Background(), "bonjour", "c1", "p1", "de")
	if res.Status != pkg.StatusError || !errors.Is(res.Err, ErrUnsupportedLanguage) {
		t.Errorf("unsupported language: %+v", res)
	}
	res = s.Handle(context.Background(), "   ", "c1", "p1", "fr")
	if res.Status != pkg.StatusError || !errors.Is(res.Err, ErrEmptyMessage) {
		t.Errorf("empty message: %+v", res)
	}
	if len(model.prompts) != 0 || len(store.messages) != 0 {
		t.Fatal("invalid input should not reach the model or the store")
	}
}

func TestHandle_Notifies(t *testing.T) {
	n := &countingNotifier{err: errors.New("channel closed")}
	s := NewChatService(ChatDeps{Store: &memoryStore{}, LLM: &stubLLM{reply: "ok"}, Notifier: n})

	res := s.Handle(context.Background(), "bonjour", "c9", "p1", "fr")
	if res.Status != pkg.StatusSuccess {
		t.Fatalf("notify failure should not fail the exchange: %v", res.Err)
	}
	if len(n.calls) != 1 || n.calls[0] != "c9" {
		t.Fatalf("notifier calls = %v", n.calls)
	}
}

func TestHandle_ConcurrentSameConversation(t *testing.T) {
	store := &memoryStore{}
	s := newTestService(store, &stubLLM{reply: "ok"})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Handle(context.Background(), fmt.Sprintf("m%d", i), "c1", "p1", "fr")
		}(i)
	}
	wg.Wait()

	msgs, _ := store.Read(context.Background(), "c1", "p1", 0)
	if len(msgs) != 20 {
		t.Fatalf("expected 20 messages, got %d", len(msgs))
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Sender != pkg.SenderUser || msgs[i+1].Sender != pkg.SenderAssistant {
			t.Fatalf("exchange at %d is interleaved", i)
		}
	}
}

func TestHandle_WithRepository(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(ctx, conn, db.DriverSQLite); err != nil {
		t.Fatal(err)
	}
	repo := db.NewRepository(conn, db.DriverSQLite, nil, nil)
	s := newTestService(repo, &stubLLM{reply: "Essayez de vous reposer."})

	res := s.Handle(ctx, "J'ai mal à la tête", "c1", "p1", "fr")
	if res.Status != pkg.StatusSuccess {
		t.Fatalf("expected success, got %v", res.Err)
	}
	msgs, err := s.History(ctx, "c1", "p1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Text != res.ResponseText {
		t.Fatalf("unexpected history: %+v", msgs)
	}
	if s.Model() != "stub" {
		t.Errorf("model = %q", s.Model())
	}
}
