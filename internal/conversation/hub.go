// ABOUTME: Hub tracks browser chat sessions and routes their UI updates
// ABOUTME: Each session owns one Conversation Store; idle sessions are reaped

package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a session may go unused before it is reaped.
const DefaultIdleTimeout = 30 * time.Minute

// Session is one browser's chat: its history and the context its turns run in.
type Session struct {
	ID    string
	Store *Store

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	lastUsed time.Time
}

// Context is cancelled when the session is closed. Background turns run in it.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed)
}

// HubOptions configures a Hub.
type HubOptions struct {
	Persister   Persister
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// Hub manages active sessions and fans updates out to their subscribers.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	persister   Persister
	idleTimeout time.Duration
	broadcaster *Broadcaster
	logger      *slog.Logger
	cancel      context.CancelFunc
}

// NewHub creates a hub and starts its idle cleanup loop.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		sessions:    make(map[string]*Session),
		persister:   opts.Persister,
		idleTimeout: idle,
		broadcaster: NewBroadcaster(logger),
		logger:      logger.With("component", "hub"),
		cancel:      cancel,
	}
	go h.cleanupLoop(ctx)
	return h
}

// Session returns the session for id, creating it and loading any persisted
// history on first use.
func (h *Hub) Session(ctx context.Context, id string) (*Session, error) {
	h.mu.RLock()
	sess, ok := h.sessions[id]
	h.mu.RUnlock()
	if ok {
		sess.touch()
		return sess, nil
	}

	store := NewStore(id, h.persister, h.logger)
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Another request may have created it while we were loading
	if existing, ok := h.sessions[id]; ok {
		existing.touch()
		return existing, nil
	}

	sctx, cancel := context.WithCancel(context.Background())
	sess = &Session{
		ID:       id,
		Store:    store,
		ctx:      sctx,
		cancel:   cancel,
		lastUsed: time.Now(),
	}
	h.sessions[id] = sess

	h.logger.Debug("session created", "session_id", id, "messages", store.Len())
	return sess, nil
}

// Lookup returns an existing session without creating one.
func (h *Hub) Lookup(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sess, ok := h.sessions[id]
	if ok {
		sess.touch()
	}
	return sess, ok
}

// Remove closes a session and drops it from the hub.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess, ok := h.sessions[id]; ok {
		sess.cancel()
		delete(h.sessions, id)
	}
}

// Len returns the number of active sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Subscribe registers for a session's updates until ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, sessionID string) (<-chan Update, string) {
	return h.broadcaster.Subscribe(ctx, sessionID)
}

// Publish delivers an update to every subscriber of a session.
func (h *Hub) Publish(sessionID string, u Update) {
	h.broadcaster.Publish(sessionID, u)
}

func (h *Hub) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.cleanupIdle(time.Now())
		}
	}
}

// cleanupIdle removes sessions that are idle and not mid-turn.
func (h *Hub) cleanupIdle(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, sess := range h.sessions {
		if sess.idleFor(now) <= h.idleTimeout || sess.Store.InTurn() {
			continue
		}
		sess.cancel()
		delete(h.sessions, id)
		removed++
	}
	if removed > 0 {
		h.logger.Debug("reaped idle sessions", "count", removed)
	}
	return removed
}

// Close cancels every session and closes all subscriptions.
func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	for id, sess := range h.sessions {
		sess.cancel()
		delete(h.sessions, id)
	}
	h.mu.Unlock()

	h.broadcaster.Close()
}
