// Package sqlite is the concrete journal, outbox, snapshot, and
// command-idempotency storage driver over modernc.org/sqlite: a single
// database holds one global event log, its outbox, per-stream snapshots,
// and the durable idempotency record CommandHandler falls back to.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ledgerflow/eventcore/internal/eventcore/handler"
	"github.com/ledgerflow/eventcore/internal/eventcore/journal"
	"github.com/ledgerflow/eventcore/internal/eventcore/notifications"
	"github.com/ledgerflow/eventcore/internal/eventcore/outbox"
	"github.com/ledgerflow/eventcore/internal/eventcore/snapshot"
	"github.com/ledgerflow/eventcore/internal/platform/storage/sqlitemigrate"
	"github.com/ledgerflow/eventcore/internal/storage/sqlite/migrations"
)

// Store is the sqlite-backed implementation of journal.Journal[E],
// outbox.Store[N], snapshot.Backend[S], and handler.Committer[E, N] for one
// event/notification/state type triple. E, N, and S are marshalled to
// JSON columns, the way the teacher's notification payloads are stored as
// payload_json.
type Store[E, N, S any] struct {
	sqlDB    *sql.DB
	consumer *notifications.Consumer
}

// Open opens (creating if necessary) a sqlite database at path and applies
// embedded migrations.
func Open[E, N, S any](path string) (*Store[E, N, S], error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	// _txlock=immediate makes every BEGIN acquire the write lock up front
	// instead of deferring it to the first write statement, so two
	// goroutines racing appendEvents's read-then-insert version check
	// serialize on BEGIN rather than both opening a read transaction and
	// later colliding as an unclassified SQLITE_BUSY on upgrade.
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store[E, N, S]{sqlDB: sqlDB, consumer: notifications.NewConsumer()}, nil
}

// Close closes the underlying sqlite database.
func (s *Store[E, N, S]) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// allocateSeq reserves n contiguous global sequence numbers within tx,
// returning the first one allocated.
func allocateSeq(ctx context.Context, tx *sql.Tx, n int) (journal.SeqNr, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE seq_allocator SET value = value + ? WHERE id = 1`, n); err != nil {
		return 0, fmt.Errorf("allocate seq_nr: %w", err)
	}
	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM seq_allocator WHERE id = 1`).Scan(&last); err != nil {
		return 0, fmt.Errorf("read allocated seq_nr: %w", err)
	}
	return journal.SeqNr(last - int64(n) + 1), nil
}

// --- journal.Reader / journal.Writer / journal.Journal ---

func (s *Store[E, N, S]) ReadStream(ctx context.Context, streamID journal.StreamID) (<-chan journal.EventMessage[E], <-chan error) {
	return s.readEvents(ctx, `SELECT id, stream_id, version, seq_nr, created_at_millis, payload_json FROM events WHERE stream_id = ? AND version > 0 ORDER BY version ASC`, streamID)
}

func (s *Store[E, N, S]) ReadStreamAfter(ctx context.Context, streamID journal.StreamID, after journal.EventVersion) (<-chan journal.EventMessage[E], <-chan error) {
	return s.readEvents(ctx, `SELECT id, stream_id, version, seq_nr, created_at_millis, payload_json FROM events WHERE stream_id = ? AND version > ? ORDER BY version ASC`, streamID, int64(after))
}

func (s *Store[E, N, S]) ReadStreamBefore(ctx context.Context, streamID journal.StreamID, before journal.EventVersion) (<-chan journal.EventMessage[E], <-chan error) {
	return s.readEvents(ctx, `SELECT id, stream_id, version, seq_nr, created_at_millis, payload_json FROM events WHERE stream_id = ? AND version < ? ORDER BY version ASC`, streamID, int64(before))
}

func (s *Store[E, N, S]) ReadAll(ctx context.Context) (<-chan journal.EventMessage[E], <-chan error) {
	return s.readEvents(ctx, `SELECT id, stream_id, version, seq_nr, created_at_millis, payload_json FROM events ORDER BY seq_nr ASC`)
}

func (s *Store[E, N, S]) ReadAllAfter(ctx context.Context, after journal.SeqNr) (<-chan journal.EventMessage[E], <-chan error) {
	return s.readEvents(ctx, `SELECT id, stream_id, version, seq_nr, created_at_millis, payload_json FROM events WHERE seq_nr > ? ORDER BY seq_nr ASC`, int64(after))
}

func (s *Store[E, N, S]) readEvents(ctx context.Context, query string, args ...any) (<-chan journal.EventMessage[E], <-chan error) {
	out := make(chan journal.EventMessage[E])
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		rows, err := s.sqlDB.QueryContext(ctx, query, args...)
		if err != nil {
			errs <- fmt.Errorf("query events: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id, streamID, payloadJSON string
				version, seqNr, createdAt int64
			)
			if err := rows.Scan(&id, &streamID, &version, &seqNr, &createdAt, &payloadJSON); err != nil {
				errs <- fmt.Errorf("scan event row: %w", err)
				return
			}
			var payload E
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				errs <- fmt.Errorf("unmarshal event payload: %w", err)
				return
			}
			parsedID, err := uuid.Parse(id)
			if err != nil {
				errs <- fmt.Errorf("parse event id: %w", err)
				return
			}
			msg := journal.EventMessage[E]{
				Metadata: journal.Metadata{
					ID:       parsedID,
					Time:     fromMillis(createdAt),
					SeqNr:    journal.SeqNr(seqNr),
					Version:  journal.EventVersion(version),
					StreamID: journal.StreamID(streamID),
				},
				Payload: payload,
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			errs <- fmt.Errorf("iterate event rows: %w", err)
			return
		}
		errs <- nil
	}()

	return out, errs
}

// Append writes events to streamID outside the Commit transaction path,
// for bootstrap/import use; CommandHandler always goes through Commit so
// outbox notifications and the command id land in the same transaction.
func (s *Store[E, N, S]) Append(ctx context.Context, streamID journal.StreamID, at time.Time, expectedVersion journal.EventVersion, events []E) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	if err := s.appendEvents(ctx, tx, streamID, at, expectedVersion, events); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	s.consumer.Notify()
	return nil
}

func (s *Store[E, N, S]) appendEvents(ctx context.Context, tx *sql.Tx, streamID journal.StreamID, at time.Time, expectedVersion journal.EventVersion, events []E) error {
	if len(events) == 0 {
		return nil
	}

	var current int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, string(streamID)).Scan(&current); err != nil {
		return fmt.Errorf("read current stream version: %w", err)
	}
	if journal.EventVersion(current) != expectedVersion {
		return journal.ErrVersionConflict
	}

	firstSeq, err := allocateSeq(ctx, tx, len(events))
	if err != nil {
		return err
	}

	version := current
	seq := int64(firstSeq)
	for _, e := range events {
		version++
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (seq_nr, id, stream_id, version, created_at_millis, payload_json)
VALUES (?, ?, ?, ?, ?, ?)`,
			seq, uuid.New().String(), string(streamID), version, toMillis(at), string(payload)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		seq++
	}
	return nil
}

// Notifications emits a wake-up tick after commits (a commit that lands
// while the previous tick is still undelivered adds no second tick),
// backed by the store's own in-process broadcaster rather than SQLite LISTEN/NOTIFY (which
// SQLite has no equivalent of). The emitted StreamID is always empty: this
// driver is a single-process wake-up bus, not a per-stream filter, so
// callers that need to know which stream changed reread the journal tail
// after waking rather than branching on the value here.
func (s *Store[E, N, S]) Notifications(ctx context.Context) <-chan journal.StreamID {
	out := make(chan journal.StreamID)
	wake := s.consumer.Listen(ctx)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				select {
				case out <- "":
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

var (
	_ journal.Journal[struct{}]             = (*Store[struct{}, struct{}, struct{}])(nil)
	_ outbox.Store[struct{}]                = (*Store[struct{}, struct{}, struct{}])(nil)
	_ snapshot.Backend[struct{}]            = (*Store[struct{}, struct{}, struct{}])(nil)
	_ handler.Committer[struct{}, struct{}] = (*Store[struct{}, struct{}, struct{}])(nil)
)

// --- outbox.Store ---

func (s *Store[E, N, S]) Pending(ctx context.Context, limit int) ([]outbox.Item[N], error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT seq_nr, stream_id, correlation_id, notification_json, created_at_millis
FROM outbox_items WHERE sent_at_millis IS NULL ORDER BY seq_nr ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox items: %w", err)
	}
	defer rows.Close()

	var items []outbox.Item[N]
	for rows.Next() {
		var (
			seqNr, createdAt        int64
			streamID, correlationID string
			notificationJSON        string
		)
		if err := rows.Scan(&seqNr, &streamID, &correlationID, &notificationJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		var n N
		if err := json.Unmarshal([]byte(notificationJSON), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification: %w", err)
		}
		corrID, err := uuid.Parse(correlationID)
		if err != nil {
			return nil, fmt.Errorf("parse correlation id: %w", err)
		}
		items = append(items, outbox.Item[N]{
			SeqNr:         journal.SeqNr(seqNr),
			StreamID:      journal.StreamID(streamID),
			CorrelationID: corrID,
			Notification:  n,
			CreatedAt:     fromMillis(createdAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return items, nil
}

func (s *Store[E, N, S]) MarkAllAsSent(ctx context.Context, seqNrs []journal.SeqNr) error {
	if len(seqNrs) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark sent: %w", err)
	}
	now := toMillis(time.Now())
	for _, n := range seqNrs {
		if _, err := tx.ExecContext(ctx, `UPDATE outbox_items SET sent_at_millis = ? WHERE seq_nr = ?`, now, int64(n)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mark outbox item sent: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark sent: %w", err)
	}
	return nil
}

// --- snapshot.Backend ---

func (s *Store[E, N, S]) Get(ctx context.Context, streamID journal.StreamID) (snapshot.Entry[S], bool, error) {
	var stateJSON string
	var version int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT version, state_json FROM snapshots WHERE stream_id = ?`, string(streamID)).Scan(&version, &stateJSON)
	if err == sql.ErrNoRows {
		return snapshot.Entry[S]{}, false, nil
	}
	if err != nil {
		return snapshot.Entry[S]{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	var state S
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return snapshot.Entry[S]{}, false, fmt.Errorf("unmarshal snapshot state: %w", err)
	}
	return snapshot.Entry[S]{State: state, Version: journal.EventVersion(version)}, true, nil
}

func (s *Store[E, N, S]) Put(ctx context.Context, streamID journal.StreamID, entry snapshot.Entry[S]) error {
	stateJSON, err := json.Marshal(entry.State)
	if err != nil {
		return fmt.Errorf("marshal snapshot state: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (stream_id, version, state_json, updated_at_millis) VALUES (?, ?, ?, ?)
ON CONFLICT(stream_id) DO UPDATE SET version = excluded.version, state_json = excluded.state_json, updated_at_millis = excluded.updated_at_millis
WHERE excluded.version > snapshots.version`,
		string(streamID), int64(entry.Version), string(stateJSON), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// --- handler.Committer ---

func (s *Store[E, N, S]) Commit(ctx context.Context, req handler.CommitRequest[E, N]) (handler.CommitResult, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return handler.CommitResult{}, fmt.Errorf("begin commit: %w", err)
	}

	if err := s.appendEvents(ctx, tx, req.StreamID, req.At, req.ExpectedVersion, req.Events); err != nil {
		_ = tx.Rollback()
		return handler.CommitResult{}, err
	}

	if len(req.Notifications) > 0 {
		firstSeq, err := allocateSeq(ctx, tx, len(req.Notifications))
		if err != nil {
			_ = tx.Rollback()
			return handler.CommitResult{}, err
		}
		seq := int64(firstSeq)
		for _, n := range req.Notifications {
			notifJSON, err := json.Marshal(n)
			if err != nil {
				_ = tx.Rollback()
				return handler.CommitResult{}, fmt.Errorf("marshal notification: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO outbox_items (seq_nr, stream_id, correlation_id, notification_json, created_at_millis)
VALUES (?, ?, ?, ?, ?)`,
				seq, string(req.StreamID), req.CommandID.String(), string(notifJSON), toMillis(req.At)); err != nil {
				_ = tx.Rollback()
				return handler.CommitResult{}, fmt.Errorf("insert outbox item: %w", err)
			}
			seq++
		}
	}

	if err := recordProcessed(ctx, tx, req.CommandID); err != nil {
		_ = tx.Rollback()
		return handler.CommitResult{}, err
	}

	var newVersion int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = ?`, string(req.StreamID)).Scan(&newVersion); err != nil {
		_ = tx.Rollback()
		return handler.CommitResult{}, fmt.Errorf("read committed version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return handler.CommitResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	s.consumer.Notify()
	return handler.CommitResult{Version: journal.EventVersion(newVersion)}, nil
}

func (s *Store[E, N, S]) RecordProcessed(ctx context.Context, commandID uuid.UUID) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record processed: %w", err)
	}
	if err := recordProcessed(ctx, tx, commandID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record processed: %w", err)
	}
	return nil
}

func recordProcessed(ctx context.Context, tx *sql.Tx, commandID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO processed_commands (command_id, processed_at_millis) VALUES (?, ?)`,
		commandID.String(), toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("record processed command: %w", err)
	}
	return nil
}

func (s *Store[E, N, S]) AlreadyProcessed(ctx context.Context, commandID uuid.UUID) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM processed_commands WHERE command_id = ?`, commandID.String()).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check processed command: %w", err)
	}
	return true, nil
}
