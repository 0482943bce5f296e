package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/equaliser/intake-agent/internal/memory"
)

// Service is the host-facing API over stored sessions. Turns on one
// session are serialised; different sessions proceed in parallel.
type Service struct {
	orch  *Orchestrator
	store Store
	locks keyedMutex
	log   *zap.Logger
	newID func() string
}

// NewService returns a Service that runs turns with orch and persists
// sessions in store.
func NewService(orch *Orchestrator, store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		orch:  orch,
		store: store,
		locks: keyedMutex{locks: make(map[string]*refLock)},
		log:   logger,
		newID: uuid.NewString,
	}
}

// CreateSession starts a new session and returns its initial snapshot.
func (s *Service) CreateSession(ctx context.Context) (*Snapshot, error) {
	sess, err := s.orch.NewSession(s.newID())
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	if err := s.store.Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.log.Info("session created", zap.String("session_id", snap.ID))
	return &snap, nil
}

// ProcessTurn runs one user message through the session identified by id.
// An unknown id yields ErrInvalidSession.
func (s *Service) ProcessTurn(ctx context.Context, id, input string) (Reply, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	sess, err := s.orch.Resume(snap)
	if err != nil {
		return Reply{}, err
	}

	reply, err := s.orch.ProcessTurn(ctx, sess, input)
	if err != nil {
		return Reply{}, err
	}
	if sess.MessageCount == snap.MessageCount && sess.State == snap.State {
		return reply, nil
	}

	// The turn has already happened; keep it even if the caller went away.
	if err := s.store.Put(context.WithoutCancel(ctx), sess.Snapshot()); err != nil {
		return Reply{}, fmt.Errorf("saving session %s: %w", id, err)
	}
	return reply, nil
}

// Session returns the stored snapshot for id.
func (s *Service) Session(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Transcript returns the full message log of a session.
func (s *Service) Transcript(ctx context.Context, id string) ([]memory.Message, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return snap.Memory.Full, nil
}

// DeleteSession removes a session.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("session deleted", zap.String("session_id", id))
	return nil
}

// PurgeIdle removes sessions last updated before the given time.
func (s *Service) PurgeIdle(ctx context.Context, before time.Time) (int, error) {
	n, err := s.store.DeleteIdle(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("purged idle sessions", zap.Int("count", n), zap.Time("before", before))
	}
	return n, nil
}

// keyedMutex hands out one mutex per key and forgets it once no goroutine
// holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
