// ABOUTME: TTL guard that rejects repeated chat submissions within a window
// ABOUTME: Keys combine the session ID with the client-generated submission ID

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// Default settings for the chat submission guard.
const (
	DefaultTTL     = 5 * time.Minute
	DefaultMaxSize = 10000
)

type guardEntry struct {
	markedAt time.Time
	element  *list.Element
}

// Guard remembers recently seen submission keys. Entries expire after the
// TTL and the oldest entry is evicted once MaxSize is reached.
type Guard struct {
	mu      sync.Mutex
	seen    map[string]*guardEntry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a guard and starts its background sweeper.
// Non-positive arguments fall back to DefaultTTL and DefaultMaxSize.
func New(ttl time.Duration, maxSize int) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	g := &Guard{
		seen:    make(map[string]*guardEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go g.sweep()
	return g
}

// Key builds the guard key for one submission in one session.
func Key(sessionID, submissionID string) string {
	return sessionID + "\x00" + submissionID
}

// Seen reports whether key was marked and has not expired.
func (g *Guard) Seen(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.seen[key]
	return ok && g.now().Sub(entry.markedAt) < g.ttl
}

// CheckAndMark returns true if key is a duplicate. Otherwise it marks the
// key and returns false, atomically.
func (g *Guard) CheckAndMark(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if entry, ok := g.seen[key]; ok {
		if now.Sub(entry.markedAt) < g.ttl {
			return true
		}
		entry.markedAt = now
		g.order.MoveToBack(entry.element)
		return false
	}

	if len(g.seen) >= g.maxSize {
		g.evictOldest()
	}
	g.seen[key] = &guardEntry{markedAt: now, element: g.order.PushBack(key)}
	return false
}

// Forget removes key so a rejected submission can be retried.
func (g *Guard) Forget(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if entry, ok := g.seen[key]; ok {
		g.order.Remove(entry.element)
		delete(g.seen, key)
	}
}

// Len returns the number of tracked keys, including expired ones not yet swept.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Must be called with mu held.
func (g *Guard) evictOldest() {
	front := g.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.seen, key)
}

func (g *Guard) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.removeExpired()
		case <-g.done:
			return
		}
	}
}

// removeExpired drops expired entries. Entries are ordered by mark time,
// so the scan stops at the first live one.
func (g *Guard) removeExpired() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for e := g.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		entry := g.seen[key]
		if now.Sub(entry.markedAt) < g.ttl {
			break
		}
		next := e.Next()
		g.order.Remove(e)
		delete(g.seen, key)
		removed++
		e = next
	}
	return removed
}

// Close stops the sweeper. It is safe to call multiple times.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
