package vigil

import (
	"context"
	"sync"
)

// ConversationStore persists per-chat conversation state between events.
// Load returns (nil, nil) for an unknown chat; the Scheduler creates the
// conversation lazily. Implementations never need internal locking for
// correctness of a single conversation: the Scheduler is the sole writer.
type ConversationStore interface {
	Load(ctx context.Context, chatID string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
}

// MemoryStore keeps conversations in process memory. State is lost on
// restart; the durable stores live under store/.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
}

var _ ConversationStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]*Conversation)}
}

func (s *MemoryStore) Load(ctx context.Context, chatID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[chatID], nil
}

func (s *MemoryStore) Save(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ChatID] = conv
	return nil
}
