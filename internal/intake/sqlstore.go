package intake

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/equaliser/intake-agent/internal/db"
)

// SQLStore persists snapshots in SQLite. The snapshot is stored whole as
// JSON; the full message log is mirrored row by row into intake_messages.
type SQLStore struct {
	db *db.DB
}

// NewSQLStore returns a store backed by database.
func NewSQLStore(database *db.DB) *SQLStore {
	return &SQLStore{db: database}
}

type sessionRow struct {
	ID           string `db:"id"`
	State        string `db:"state"`
	MessageCount int    `db:"message_count"`
	Snapshot     string `db:"snapshot"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func toRow(snap Snapshot) (sessionRow, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return sessionRow{}, fmt.Errorf("encoding snapshot: %w", err)
	}
	return sessionRow{
		ID:           snap.ID,
		State:        string(snap.State),
		MessageCount: snap.MessageCount,
		Snapshot:     string(raw),
		CreatedAt:    db.FormatTime(snap.CreatedAt),
		UpdatedAt:    db.FormatTime(snap.UpdatedAt),
	}, nil
}

func (s *SQLStore) Create(ctx context.Context, snap Snapshot) error {
	row, err := toRow(snap)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM intake_sessions WHERE id = ?`, snap.ID); err != nil {
			return fmt.Errorf("checking session: %w", err)
		}
		if exists > 0 {
			return ErrSessionExists
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO intake_sessions (id, state, message_count, snapshot, created_at, updated_at)
			 VALUES (:id, :state, :message_count, :snapshot, :created_at, :updated_at)`, row); err != nil {
			return fmt.Errorf("inserting session: %w", err)
		}
		return syncMessages(ctx, tx, snap)
	})
}

func (s *SQLStore) Get(ctx context.Context, id string) (Snapshot, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT snapshot FROM intake_sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrInvalidSession
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("getting session: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decoding snapshot %s: %w", id, err)
	}
	return snap, nil
}

func (s *SQLStore) Put(ctx context.Context, snap Snapshot) error {
	row, err := toRow(snap)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx,
			`UPDATE intake_sessions SET
			   state = :state,
			   message_count = :message_count,
			   snapshot = :snapshot,
			   updated_at = :updated_at
			 WHERE id = :id`, row)
		if err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrInvalidSession
		}
		return syncMessages(ctx, tx, snap)
	})
}

// syncMessages appends the messages of the full log not yet stored. The log
// only grows between saves, so existing rows never change.
func syncMessages(ctx context.Context, tx *sqlx.Tx, snap Snapshot) error {
	var stored int
	if err := tx.GetContext(ctx, &stored,
		`SELECT COUNT(*) FROM intake_messages WHERE session_id = ?`, snap.ID); err != nil {
		return fmt.Errorf("counting messages: %w", err)
	}
	full := snap.Memory.Full
	if stored > len(full) {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM intake_messages WHERE session_id = ? AND position >= ?`, snap.ID, len(full)); err != nil {
			return fmt.Errorf("trimming messages: %w", err)
		}
		return nil
	}
	for i := stored; i < len(full); i++ {
		msg := full[i]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO intake_messages (session_id, position, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
			snap.ID, i, string(msg.Role), msg.Text, db.FormatTime(msg.Timestamp)); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM intake_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrInvalidSession
	}
	return nil
}

func (s *SQLStore) DeleteIdle(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM intake_sessions WHERE updated_at < ?`, db.FormatTime(before))
	if err != nil {
		return 0, fmt.Errorf("purging idle sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// MessageRow is one stored transcript line.
type MessageRow struct {
	Position  int    `db:"position"`
	Role      string `db:"role"`
	Content   string `db:"content"`
	CreatedAt string `db:"created_at"`
}

// Messages returns the stored transcript of a session in order.
func (s *SQLStore) Messages(ctx context.Context, id string) ([]MessageRow, error) {
	var rows []MessageRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT position, role, content, created_at FROM intake_messages WHERE session_id = ? ORDER BY position`, id); err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return rows, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
