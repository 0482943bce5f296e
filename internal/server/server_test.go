package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestHealthCheck(t *testing.T) {
	srv := New(Config{Port: 0}, zaptest.NewLogger(t))

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := New(Config{AllowedOrigins: []string{"https://intake.example.org"}}, nil)

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "https://intake.example.org")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://intake.example.org" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q for foreign origin", got)
	}
}

func TestRoutesCarryRequestTimeout(t *testing.T) {
	srv := New(Config{RequestTimeout: time.Minute}, nil)
	var deadline, rawDeadline bool
	srv.Routes(func(r chi.Router) {
		r.Get("/timed", func(w http.ResponseWriter, r *http.Request) {
			_, deadline = r.Context().Deadline()
		})
	})
	srv.Router().Get("/raw", func(w http.ResponseWriter, r *http.Request) {
		_, rawDeadline = r.Context().Deadline()
	})

	srv.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/timed", nil))
	srv.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/raw", nil))

	if !deadline {
		t.Error("timed route should carry a deadline")
	}
	if rawDeadline {
		t.Error("raw route should not carry a deadline")
	}
}

type fakePurger struct {
	mu      sync.Mutex
	befores []time.Time
	err     error
}

func (f *fakePurger) PurgeIdle(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.befores = append(f.befores, before)
	return 2, f.err
}

func TestNewJanitorValidates(t *testing.T) {
	if _, err := NewJanitor(&fakePurger{}, 0, "@every 1m", nil); err == nil {
		t.Error("expected error for zero ttl")
	}
	if _, err := NewJanitor(&fakePurger{}, time.Hour, "whenever", nil); err == nil {
		t.Error("expected error for bad schedule")
	}
}

func TestJanitorSweepUsesTTL(t *testing.T) {
	p := &fakePurger{}
	j, err := NewJanitor(p, 2*time.Hour, "@every 10m", zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	n, err := j.Sweep(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
	if want := now.Add(-2 * time.Hour); !p.befores[0].Equal(want) {
		t.Errorf("purged before %s, want %s", p.befores[0], want)
	}

	p.err = errors.New("disk full")
	if _, err := j.Sweep(context.Background()); err == nil {
		t.Error("expected purge error to surface")
	}
}

func TestJanitorRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	j, err := NewJanitor(&fakePurger{}, time.Hour, "@every 1h", nil)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
