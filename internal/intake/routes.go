package intake

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/equaliser/intake-agent/internal/facts"
	"github.com/equaliser/intake-agent/internal/memory"
)

// RegisterRoutes mounts the intake chat API.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/session", handleCreate(svc))
	r.Post("/chat", handleChat(svc))
	r.Get("/sessions/{id}", handleGet(svc))
	r.Get("/sessions/{id}/transcript", handleTranscript(svc))
	r.Delete("/sessions/{id}", handleDelete(svc))
}

type createResponse struct {
	SessionID string `json:"session_id"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	AIMessage string `json:"ai_message"`
	Complete  bool   `json:"complete"`
}

// SessionView is the public status of a session.
type SessionView struct {
	ID           string        `json:"session_id"`
	State        State         `json:"state"`
	Complete     bool          `json:"complete"`
	MessageCount int           `json:"message_count"`
	MessageLimit int           `json:"message_limit"`
	Facts        facts.Record  `json:"facts"`
	Tracker      facts.Tracker `json:"tracker"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// View returns the public status of snap.
func View(snap *Snapshot) SessionView {
	return SessionView{
		ID:           snap.ID,
		State:        snap.State,
		Complete:     snap.Complete(),
		MessageCount: snap.MessageCount,
		MessageLimit: snap.MessageLimit,
		Facts:        snap.Facts,
		Tracker:      snap.Tracker,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
}

func handleCreate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.CreateSession(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, createResponse{SessionID: snap.ID})
	}
}

func handleChat(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		reply, err := svc.ProcessTurn(r.Context(), req.SessionID, req.Message)
		if errors.Is(err, ErrInvalidSession) {
			writeError(w, http.StatusBadRequest, "Invalid session ID")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{AIMessage: reply.Message, Complete: reply.Complete})
	}
}

func handleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := svc.Session(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrInvalidSession) {
			writeError(w, http.StatusNotFound, "Invalid session ID")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, View(snap))
	}
}

func handleTranscript(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, err := svc.Transcript(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrInvalidSession) {
			writeError(w, http.StatusNotFound, "Invalid session ID")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if msgs == nil {
			msgs = []memory.Message{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleDelete(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := svc.DeleteSession(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrInvalidSession) {
			writeError(w, http.StatusNotFound, "Invalid session ID")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
