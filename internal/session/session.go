// Package session owns the per-session rolling context and the process-wide
// registry of active sessions. A session's context is the bounded history of
// recent consolidated sentences handed to the arbiter for disambiguation.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beliczki/transcriber/internal/observability"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrSessionLimit     = errors.New("maximum concurrent sessions reached")
	ErrInvalidSessionID = errors.New("session id must be a valid UUID")
)

// Context is the state for one active session. Mutation happens only inside
// a chunk's turn (between WaitTurn and FinishTurn), which serializes
// consolidation and context updates in chunk submission order.
type Context struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	turnDone     *sync.Cond
	nextTicket   int64
	serving      int64
	lastActivity time.Time
	sentences    []string
	capacity     int
	chunks       int64
}

func newContext(id string, capacity int) *Context {
	c := &Context{
		ID:           id,
		CreatedAt:    time.Now(),
		lastActivity: time.Now(),
		capacity:     capacity,
		serving:      1,
	}
	c.turnDone = sync.NewCond(&c.mu)
	return c
}

// Submit assigns the next chunk sequence number at submission time. Engine
// dispatch for the ticket may then run concurrently with other chunks; only
// WaitTurn imposes ordering.
func (c *Context) Submit() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTicket++
	return c.nextTicket
}

// WaitTurn blocks until every earlier ticket has finished its turn. Each
// Submit must be followed by exactly one WaitTurn/FinishTurn pair, even when
// the chunk fails, or later chunks stall.
func (c *Context) WaitTurn(ticket int64) {
	c.mu.Lock()
	for c.serving != ticket {
		c.turnDone.Wait()
	}
	c.mu.Unlock()
}

// FinishTurn releases the turn to the next ticket.
func (c *Context) FinishTurn() {
	c.mu.Lock()
	c.serving++
	c.mu.Unlock()
	c.turnDone.Broadcast()
}

// Append adds a consolidated sentence to the rolling window, evicting the
// oldest when the window is full. Call during the chunk's turn.
func (c *Context) Append(sentence string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks++
	c.lastActivity = time.Now()
	if c.capacity == 0 || sentence == "" {
		return
	}
	c.sentences = append(c.sentences, sentence)
	if len(c.sentences) > c.capacity {
		c.sentences = c.sentences[len(c.sentences)-c.capacity:]
	}
}

// Sentences returns a copy of the current context window, oldest first.
func (c *Context) Sentences() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sentences))
	copy(out, c.sentences)
	return out
}

// Touch records activity without appending context, e.g. for a failed chunk.
func (c *Context) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity reports when the session last processed anything.
func (c *Context) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Chunks reports how many chunks the session has processed.
func (c *Context) Chunks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunks
}

// Registry is the process-wide map of active sessions. Creation is explicit
// on session start; removal happens on session end or idle timeout.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Context
	window      int
	maxSessions int
	idleTimeout time.Duration
}

func NewRegistry(contextWindow, maxSessions int, idleTimeout time.Duration) *Registry {
	return &Registry{
		sessions:    make(map[string]*Context),
		window:      contextWindow,
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
	}
}

// Create registers a new session. Session ids come from clients and must be
// UUIDs so they are safe to use as storage keys.
func (r *Registry) Create(id string) (*Context, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidSessionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, ErrSessionExists
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		return nil, ErrSessionLimit
	}

	sess := newContext(id, r.window)
	r.sessions[id] = sess

	observability.RecordSessionStart()
	logger := observability.GetLogger()
	logger.Info().
		Str("session_id", id).
		Int("active_sessions", len(r.sessions)).
		Msg("Session created")
	return sess, nil
}

// Get looks up an active session.
func (r *Registry) Get(id string) (*Context, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// End removes a session and returns its final state.
func (r *Registry) End(id string) (*Context, error) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	remaining := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	observability.RecordSessionEnd(sess.CreatedAt)
	logger := observability.GetLogger()
	logger.Info().
		Str("session_id", id).
		Int64("chunks", sess.Chunks()).
		Dur("duration", time.Since(sess.CreatedAt)).
		Int("active_sessions", remaining).
		Msg("Session ended")
	return sess, nil
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// StartJanitor launches the idle-session sweeper. It stops when ctx is
// cancelled. onExpire, when non-nil, runs for every expired session after
// removal.
func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration, onExpire func(*Context)) {
	if r.idleTimeout <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sess := range r.expireIdle() {
					if onExpire != nil {
						onExpire(sess)
					}
				}
			}
		}
	}()
}

func (r *Registry) expireIdle() []*Context {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var expired []*Context
	for id, sess := range r.sessions {
		if sess.LastActivity().Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, sess)
		}
	}
	r.mu.Unlock()

	logger := observability.GetLogger()
	for _, sess := range expired {
		observability.RecordSessionEnd(sess.CreatedAt)
		logger.Warn().
			Str("session_id", sess.ID).
			Time("last_activity", sess.LastActivity()).
			Msg("Session expired after idle timeout")
	}
	return expired
}
