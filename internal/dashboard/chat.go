package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/intake"
)

// chatRequest is the incoming WebSocket message format.
type chatRequest struct {
	Type      string `json:"type"`       // "start", "message" or "status"
	SessionID string `json:"session_id"` // empty starts a new session on "message"
	Content   string `json:"content"`
}

// chatResponse is the outgoing WebSocket message format.
type chatResponse struct {
	Type      string              `json:"type"` // "session", "response", "status" or "error"
	SessionID string              `json:"session_id"`
	Content   string              `json:"content,omitempty"`
	Mode      string              `json:"mode,omitempty"`
	Complete  bool                `json:"complete"`
	Status    *intake.SessionView `json:"status,omitempty"`
}

func (d *Dashboard) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{CheckOrigin: d.checkOrigin}
}

// checkOrigin admits same-host requests, requests without an Origin header,
// and the configured origins.
func (d *Dashboard) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(d.origins, "*") || slices.Contains(d.origins, origin) {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader().Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var req chatRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			d.sendError(conn, "", "invalid message format")
			continue
		}

		switch req.Type {
		case "start":
			d.handleStart(conn, r)
		case "message":
			if req.Content == "" {
				d.sendError(conn, req.SessionID, "content is required")
				continue
			}
			d.handleChatMessage(conn, r, req)
		case "status":
			d.handleStatus(conn, r, req)
		default:
			d.sendError(conn, req.SessionID, "unknown message type: "+req.Type)
		}
	}
}

func (d *Dashboard) handleStart(conn *websocket.Conn, r *http.Request) {
	snap, err := d.sessions.CreateSession(r.Context())
	if err != nil {
		d.logger.Error("create session failed", zap.Error(err))
		d.sendError(conn, "", "failed to create session")
		return
	}
	d.send(conn, chatResponse{Type: "session", SessionID: snap.ID, Content: intake.Greeting})
}

func (d *Dashboard) handleChatMessage(conn *websocket.Conn, r *http.Request, req chatRequest) {
	ctx := r.Context()
	sessionID := req.SessionID

	if sessionID == "" {
		snap, err := d.sessions.CreateSession(ctx)
		if err != nil {
			d.logger.Error("create session failed", zap.Error(err))
			d.sendError(conn, "", "failed to create session")
			return
		}
		sessionID = snap.ID
	}

	reply, err := d.sessions.ProcessTurn(ctx, sessionID, req.Content)
	if err != nil {
		if errors.Is(err, intake.ErrInvalidSession) {
			d.sendError(conn, sessionID, "Invalid session ID")
			return
		}
		d.logger.Error("turn failed", zap.String("session_id", sessionID), zap.Error(err))
		d.sendError(conn, sessionID, "processing failed")
		return
	}

	d.send(conn, chatResponse{
		Type:      "response",
		SessionID: sessionID,
		Content:   reply.Message,
		Mode:      string(reply.Mode),
		Complete:  reply.Complete,
	})
}

func (d *Dashboard) handleStatus(conn *websocket.Conn, r *http.Request, req chatRequest) {
	snap, err := d.sessions.Session(r.Context(), req.SessionID)
	if err != nil {
		d.sendError(conn, req.SessionID, "Invalid session ID")
		return
	}
	view := intake.View(snap)
	d.send(conn, chatResponse{
		Type:      "status",
		SessionID: snap.ID,
		Complete:  snap.Complete(),
		Status:    &view,
	})
}

func (d *Dashboard) send(conn *websocket.Conn, resp chatResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		d.logger.Warn("websocket write failed", zap.Error(err))
	}
}

func (d *Dashboard) sendError(conn *websocket.Conn, sessionID, message string) {
	d.send(conn, chatResponse{Type: "error", SessionID: sessionID, Content: message})
}
