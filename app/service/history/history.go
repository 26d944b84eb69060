package history

import (
	"sync"

	"menreiki/app/config"

	"github.com/samber/do"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role
	Content string
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Store keeps a rolling transcript per conversation id.
type Store interface {
	// Transcript returns a copy of the turns recorded for id, oldest first.
	Transcript(id string) []Turn
	// Append records one completed exchange.
	Append(id string, user, assistant Turn)
	// Conversations reports how many transcripts exist.
	Conversations() int
}

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	maxEntries int

	mu          sync.RWMutex
	transcripts map[string][]Turn
}

func New(di *do.Injector) (Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewMemoryStore(cfg.History.MaxEntries), nil
}

// NewMemoryStore creates a store capping each transcript at maxEntries
// turns. Values below 2 fall back to the default.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries < 2 {
		maxEntries = config.DefaultHistorySize
	}

	return &MemoryStore{
		maxEntries:  maxEntries,
		transcripts: make(map[string][]Turn),
	}
}

func (s *MemoryStore) Transcript(id string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.transcripts[id]
	result := make([]Turn, len(turns))
	copy(result, turns)

	return result
}

func (s *MemoryStore) Append(id string, user, assistant Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.transcripts[id], user, assistant)

	// evict whole pairs so a user turn never loses its reply
	for len(turns) > s.maxEntries {
		turns = turns[2:]
	}

	s.transcripts[id] = turns
}

func (s *MemoryStore) Conversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.transcripts)
}
