package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/equaliser/intake-agent/internal/db"
)

// ErrNoReport is returned when a session has no stored report.
var ErrNoReport = errors.New("no report for session")

// Report is a stored report.
type Report struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Skeleton  Skeleton  `json:"skeleton"`
	Sections  []string  `json:"sections,omitempty"`
	Markdown  string    `json:"markdown"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type reportRow struct {
	ID        string `db:"id"`
	SessionID string `db:"session_id"`
	Title     string `db:"title"`
	Skeleton  string `db:"skeleton"`
	Markdown  string `db:"markdown"`
	Model     string `db:"model"`
	CreatedAt string `db:"created_at"`
}

func (r reportRow) report() (*Report, error) {
	rep := &Report{
		ID:        r.ID,
		SessionID: r.SessionID,
		Title:     r.Title,
		Markdown:  r.Markdown,
		Model:     r.Model,
	}
	if err := json.Unmarshal([]byte(r.Skeleton), &rep.Skeleton); err != nil {
		return nil, fmt.Errorf("decoding skeleton of report %s: %w", r.ID, err)
	}
	t, err := db.ParseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at of report %s: %w", r.ID, err)
	}
	rep.CreatedAt = t
	return rep, nil
}

// Store persists generated reports.
type Store struct {
	db *db.DB
}

// NewStore returns a report store backed by database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Save stores doc as the newest report for sessionID.
func (s *Store) Save(ctx context.Context, sessionID, model string, doc *Document) (*Report, error) {
	skel, err := json.Marshal(doc.Skeleton)
	if err != nil {
		return nil, fmt.Errorf("encoding skeleton: %w", err)
	}
	rep := &Report{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Title:     doc.Title,
		Skeleton:  doc.Skeleton,
		Sections:  doc.Sections,
		Markdown:  doc.Markdown,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO intake_reports (id, session_id, title, skeleton, markdown, model, created_at)
		 VALUES (:id, :session_id, :title, :skeleton, :markdown, :model, :created_at)`,
		reportRow{
			ID:        rep.ID,
			SessionID: sessionID,
			Title:     rep.Title,
			Skeleton:  string(skel),
			Markdown:  rep.Markdown,
			Model:     model,
			CreatedAt: db.FormatTime(rep.CreatedAt),
		})
	if err != nil {
		return nil, fmt.Errorf("inserting report: %w", err)
	}
	return rep, nil
}

// Latest returns the most recent report for sessionID.
func (s *Store) Latest(ctx context.Context, sessionID string) (*Report, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, session_id, title, skeleton, markdown, model, created_at
		 FROM intake_reports WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return row.report()
}

// List returns all reports for sessionID, newest first.
func (s *Store) List(ctx context.Context, sessionID string) ([]Report, error) {
	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, session_id, title, skeleton, markdown, model, created_at
		 FROM intake_reports WHERE session_id = ? ORDER BY created_at DESC`, sessionID); err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	out := make([]Report, 0, len(rows))
	for _, r := range rows {
		rep, err := r.report()
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, nil
}
