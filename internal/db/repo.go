package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"medchat-proxy/internal/logger"
	"medchat-proxy/internal/metrics"
	"medchat-proxy/pkg"
)

// Repository is the append-only history store.  Messages are keyed by the
// (conversation_id, patient_id) pair and read back in insertion order.
type Repository struct {
	DB      *sql.DB
	Driver  string
	Log     *logger.Logger
	Metrics *metrics.Metrics
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
// log and m may be nil.
func NewRepository(db *sql.DB, driver string, log *logger.Logger, m *metrics.Metrics) *Repository {
	if log == nil {
		log = logger.Nop()
	}
	return &Repository{DB: db, Driver: driver, Log: log.Component("history"), Metrics: m}
}

const insertMessage = `INSERT INTO chat_history (conversation_id, patient_id, message, sender, timestamp)
         VALUES (?, ?, ?, ?, ?)`

// Append stores one message.
func (r *Repository) Append(ctx context.Context, conversationID, patientID, text string, sender pkg.Sender) (err error) {
	if err := validate(text, sender); err != nil {
		return err
	}
	start := time.Now()
	defer func() { r.observe("append", start, 1, err) }()

	_, err = r.DB.ExecContext(ctx, r.rebind(insertMessage),
		conversationID, patientID, text, string(sender), time.Now().UTC())
	if err != nil {
		return &StorageError{Op: "append", Err: err}
	}
	return nil
}

// AppendTurn stores the user's message and the assistant's reply of one
// exchange in a single transaction, so either both are visible or neither.
func (r *Repository) AppendTurn(ctx context.Context, conversationID, patientID, userText, assistantText string) (err error) {
	if err := validate(userText, pkg.SenderUser); err != nil {
		return err
	}
	if err := validate(assistantText, pkg.SenderAssistant); err != nil {
		return err
	}
	start := time.Now()
	defer func() { r.observe("append_turn", start, 2, err) }()

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "append_turn", Err: err}
	}
	defer tx.Rollback()

	query := r.rebind(insertMessage)
	if _, err := tx.ExecContext(ctx, query, conversationID, patientID, userText, string(pkg.SenderUser), time.Now().UTC()); err != nil {
		return &StorageError{Op: "append_turn", Err: fmt.Errorf("user message: %w", err)}
	}
	if _, err := tx.ExecContext(ctx, query, conversationID, patientID, assistantText, string(pkg.SenderAssistant), time.Now().UTC()); err != nil {
		return &StorageError{Op: "append_turn", Err: fmt.Errorf("assistant message: %w", err)}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "append_turn", Err: err}
	}
	return nil
}

// Read returns the limit most recent messages of a conversation, oldest
// first.  A limit of zero or less returns the whole conversation.  An unknown
// conversation yields an empty slice.
func (r *Repository) Read(ctx context.Context, conversationID, patientID string, limit int) (out []pkg.Message, err error) {
	start := time.Now()
	defer func() { r.observe("read", start, len(out), err) }()

	var rows *sql.Rows
	if limit > 0 {
		rows, err = r.DB.QueryContext(ctx, r.rebind(
			`SELECT id, conversation_id, patient_id, message, sender, timestamp FROM (
             SELECT id, conversation_id, patient_id, message, sender, timestamp
             FROM chat_history
             WHERE conversation_id = ? AND patient_id = ?
             ORDER BY id DESC
             LIMIT ?
         ) recent
         ORDER BY id ASC`), conversationID, patientID, limit)
	} else {
		rows, err = r.DB.QueryContext(ctx, r.rebind(
			`SELECT id, conversation_id, patient_id, message, sender, timestamp
         FROM chat_history
         WHERE conversation_id = ? AND patient_id = ?
         ORDER BY id ASC`), conversationID, patientID)
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	defer rows.Close()

	out = []pkg.Message{}
	for rows.Next() {
		var m pkg.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.PatientID, &m.Text, &sender, &m.CreatedAt); err != nil {
			return nil, &StorageError{Op: "read", Err: err}
		}
		m.Sender = pkg.Sender(sender)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "read", Err: err}
	}
	return out, nil
}

// Ping checks that the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.DB.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

func validate(text string, sender pkg.Sender) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if !sender.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSender, sender)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (r *Repository) rebind(query string) string {
	if r.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (r *Repository) observe(op string, start time.Time, count int, err error) {
	d := time.Since(start)
	r.Log.LogDbOperation(op, d, count, err)
	if r.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.Metrics.RecordDbOperation(op, status, d)
}
