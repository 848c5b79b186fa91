// ABOUTME: Conversation Store holding the ordered message history of one chat
// ABOUTME: Mutations only append or pop; an optional Persister mirrors them durably

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/cortex-chat/internal/agent"
)

// ErrTurnInProgress is returned by BeginTurn while another turn owns the store.
var ErrTurnInProgress = errors.New("a response is already streaming for this conversation")

// Persister mirrors store mutations to durable storage.
type Persister interface {
	AppendMessage(ctx context.Context, conversationID string, msg agent.Message) error
	DeleteLastMessage(ctx context.Context, conversationID string) error
	ListMessages(ctx context.Context, conversationID string) ([]agent.Message, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Store is the ordered history of one conversation.
// The in-memory sequence is authoritative; persistence failures are logged
// and never undo a mutation.
type Store struct {
	mu        sync.Mutex
	id        string
	messages  []agent.Message
	persister Persister
	logger    *slog.Logger
	inTurn    bool
}

// NewStore creates an empty store. Pass a nil persister for memory-only history
// and a nil logger for the default.
func NewStore(id string, persister Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		id:        id,
		persister: persister,
		logger:    logger.With("component", "conversation", "conversation_id", id),
	}
}

// ID returns the conversation identifier.
func (s *Store) ID() string {
	return s.id
}

// Load replaces the in-memory history with what the persister holds.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	msgs, err := s.persister.ListMessages(ctx, s.id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = msgs
	return nil
}

// Append adds a message to the end of the history.
func (s *Store) Append(ctx context.Context, msg agent.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg.Clone())

	if s.persister != nil {
		if err := s.persister.AppendMessage(ctx, s.id, msg); err != nil {
			s.logger.Error("failed to persist message", "role", msg.Role, "error", err)
		}
	}
}

// Pop removes exactly the last message and returns it.
// It reports false when the history is empty.
func (s *Store) Pop(ctx context.Context) (agent.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return agent.Message{}, false
	}
	last := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]

	if s.persister != nil {
		if err := s.persister.DeleteLastMessage(ctx, s.id); err != nil {
			s.logger.Error("failed to persist rollback", "error", err)
		}
	}
	return last, true
}

// Messages returns a copy of the history in order.
func (s *Store) Messages() []agent.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]agent.Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Last returns the most recent message.
func (s *Store) Last() (agent.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return agent.Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// Reset clears the history, as for "New Conversation".
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inTurn {
		return ErrTurnInProgress
	}
	s.messages = nil

	if s.persister != nil {
		if err := s.persister.DeleteConversation(ctx, s.id); err != nil {
			s.logger.Error("failed to persist reset", "error", err)
		}
	}
	return nil
}

// BeginTurn claims the store for one submission. The returned func releases it
// and is safe to call more than once.
func (s *Store) BeginTurn() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inTurn {
		return nil, ErrTurnInProgress
	}
	s.inTurn = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.inTurn = false
			s.mu.Unlock()
		})
	}, nil
}

// InTurn reports whether a turn currently owns the store.
func (s *Store) InTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTurn
}
