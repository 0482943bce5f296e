package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/intake"
)

// Sessions looks up intake sessions.
type Sessions interface {
	Session(ctx context.Context, id string) (*intake.Snapshot, error)
}

// Handler serves generated reports over HTTP.
type Handler struct {
	Pipeline *Pipeline
	Store    *Store
	Sessions Sessions
	Model    string
	Logger   *zap.Logger
}

// RegisterRoutes mounts the report API.
func RegisterRoutes(r chi.Router, h *Handler) {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	r.Post("/sessions/{id}/report", h.handleGenerate)
	r.Get("/sessions/{id}/report", h.handleGet)
	r.Get("/sessions/{id}/report.html", h.handleHTML)
}

// Generate drafts and stores a report for a session. Unless force is set
// the session must be complete.
func (h *Handler) Generate(ctx context.Context, sessionID string, force bool) (*Report, error) {
	snap, err := h.Sessions.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !snap.Complete() && !force {
		return nil, ErrSessionOpen
	}
	doc, err := h.Pipeline.Generate(ctx, DefaultTitle, snap.Memory.Full, snap.Facts)
	if err != nil {
		return nil, err
	}
	rep, err := h.Store.Save(context.WithoutCancel(ctx), sessionID, h.Model, doc)
	if err != nil {
		return nil, err
	}
	h.Logger.Info("report generated",
		zap.String("session_id", sessionID),
		zap.String("report_id", rep.ID),
		zap.Int("sections", len(doc.Sections)))
	return rep, nil
}

// ErrSessionOpen is returned when a report is requested for a session that
// is still collecting information.
var ErrSessionOpen = errors.New("session is not complete")

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	rep, err := h.Generate(r.Context(), chi.URLParam(r, "id"), force)
	var secErr *SectionError
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, rep)
	case errors.Is(err, intake.ErrInvalidSession):
		writeError(w, http.StatusNotFound, "Invalid session ID")
	case errors.Is(err, ErrSessionOpen):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &secErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) latest(w http.ResponseWriter, r *http.Request) (*Report, bool) {
	rep, err := h.Store.Latest(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, ErrNoReport) {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return rep, true
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latest(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(rep.Markdown))
}

func (h *Handler) handleHTML(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.latest(w, r)
	if !ok {
		return
	}
	page, err := RenderHTML(rep.Title, rep.Markdown, rep.CreatedAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
