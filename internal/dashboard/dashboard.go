// Package dashboard serves the browser chat client and its websocket.
package dashboard

import (
	"context"
	"slices"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/intake"
	"github.com/equaliser/intake-agent/internal/llm"
)

// Sessions is the part of the intake service the dashboard drives.
type Sessions interface {
	CreateSession(ctx context.Context) (*intake.Snapshot, error)
	ProcessTurn(ctx context.Context, id, input string) (intake.Reply, error)
	Session(ctx context.Context, id string) (*intake.Snapshot, error)
}

// Usage reports oracle spend.
type Usage interface {
	Total() llm.Usage
	ByOperation() []llm.Usage
}

// Dashboard provides the chat client and usage view.
type Dashboard struct {
	sessions Sessions
	usage    Usage
	origins  []string
	logger   *zap.Logger
}

// New creates a new Dashboard. usage may be nil. origins lists the browser
// origins allowed to open the websocket; "*" allows any.
func New(sessions Sessions, usage Usage, origins []string, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		sessions: sessions,
		usage:    usage,
		origins:  slices.Clone(origins),
		logger:   logger,
	}
}

// RegisterRoutes mounts all dashboard routes onto the given router.
func (d *Dashboard) RegisterRoutes(r chi.Router) {
	r.Get("/", d.ServeIndex)
	r.Get("/api/dashboard/usage", d.handleUsage)
	r.Get("/ws/chat", d.handleWebSocket)
}
