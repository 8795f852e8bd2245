package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"medchat-proxy/internal/logger"
)

// Notifier wraps the LISTEN/NOTIFY mechanism in PostgreSQL.  It announces
// every persisted exchange on a channel so other processes (a dashboard, an
// audit job) can follow conversations without polling.  With SQLite it is a
// no-op.
type Notifier struct {
	DB      *sql.DB
	Driver  string
	Channel string
}

// NewNotifier constructs a new Notifier.  The channel should match the
// NOTIFY_CHANNEL configuration value.
func NewNotifier(db *sql.DB, driver, channel string) *Notifier {
	return &Notifier{DB: db, Driver: driver, Channel: channel}
}

// Notify sends the conversation ID to the configured channel.
func (n *Notifier) Notify(ctx context.Context, conversationID string) error {
	if n == nil || n.Driver != DriverPostgres || n.Channel == "" {
		return nil
	}
	// NOTIFY does not accept bind parameters; pg_notify does.
	if _, err := n.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.Channel, conversationID); err != nil {
		return &StorageError{Op: "notify", Err: err}
	}
	return nil
}

// Listen opens a dedicated listener connection and yields conversation IDs as
// notifications arrive.  The channel is closed when ctx is cancelled.
func Listen(ctx context.Context, dsn, channel string, log *logger.Logger) (<-chan string, error) {
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("listener event")
		}
	})
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", pq.QuoteIdentifier(channel), err)
	}

	ch := make(chan string)
	go func() {
		defer func() {
			_ = listener.Close()
			close(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case note := <-listener.Notify:
				// nil after a reconnect
				if note == nil {
					continue
				}
				select {
				case ch <- note.Extra:
				case <-ctx.Done():
					return
				}
			case <-time.After(90 * time.Second):
				go listener.Ping()
			}
		}
	}()
	return ch, nil
}
