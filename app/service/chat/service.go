package chat

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"menreiki/app/client/llm"
	"menreiki/app/config"
	"menreiki/app/service/history"

	"github.com/samber/do"
	"github.com/samber/oops"
)

var ErrNoChoices = errors.New("no chat completion found")

// Chooser picks an index in [0, n). n is always positive.
type Chooser func(n int) int

func RandomChooser(n int) int {
	return rand.IntN(n)
}

type Service struct {
	store     history.Store
	completer llm.Completer
	preamble  []history.Turn
	choose    Chooser
	timeout   time.Duration

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

type Option func(*Service)

func WithChooser(choose Chooser) Option {
	return func(s *Service) {
		s.choose = choose
	}
}

func WithPreamble(preamble ...history.Turn) Option {
	return func(s *Service) {
		s.preamble = preamble
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	preamble := make([]history.Turn, 0, len(cfg.OpenAI.Preamble))
	for _, msg := range cfg.OpenAI.Preamble {
		preamble = append(preamble, history.Turn{
			Role:    history.Role(msg.Role),
			Content: msg.Content,
		})
	}

	return NewService(
		do.MustInvoke[history.Store](di),
		do.MustInvoke[llm.Completer](di),
		WithPreamble(preamble...),
		WithTimeout(cfg.OpenAI.Timeout),
	), nil
}

func NewService(store history.Store, completer llm.Completer, opts ...Option) *Service {
	s := &Service{
		store:     store,
		completer: completer,
		choose:    RandomChooser,
		locks:     make(map[string]chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Exchange sends prompt to the completion backend with the preamble and the
// conversation's transcript as context, records the exchange and returns the
// reply. On failure the transcript is left untouched.
//
// Exchanges on the same conversation are serialized; different
// conversations proceed concurrently.
func (s *Service) Exchange(ctx context.Context, conversationID, prompt string) (string, error) {
	unlock, err := s.lock(ctx, conversationID)
	if err != nil {
		return "", oops.
			In("chat").
			With("conversation_id", conversationID).
			Wrapf(err, "waiting for conversation")
	}
	defer unlock()

	transcript := s.store.Transcript(conversationID)
	userTurn := history.UserTurn(prompt)

	messages := make([]history.Turn, 0, len(s.preamble)+len(transcript)+1)
	messages = append(messages, s.preamble...)
	messages = append(messages, transcript...)
	messages = append(messages, userTurn)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()

	candidates, err := s.completer.Complete(ctx, messages)
	if err != nil {
		return "", oops.
			In("chat").
			With("conversation_id", conversationID).
			Wrapf(err, "completion failed")
	}

	if len(candidates) == 0 {
		return "", oops.
			In("chat").
			With("conversation_id", conversationID).
			Wrap(ErrNoChoices)
	}

	reply := candidates[s.choose(len(candidates))]

	s.store.Append(conversationID, userTurn, history.AssistantTurn(reply))

	slog.Debug("Exchange completed",
		"conversation_id", conversationID,
		"context_turns", len(transcript),
		"candidates", len(candidates),
		"duration", time.Since(start),
	)

	return reply, nil
}

// lock takes the conversation's slot, giving up when ctx is done first.
func (s *Service) lock(ctx context.Context, conversationID string) (func(), error) {
	s.locksMu.Lock()
	slot, ok := s.locks[conversationID]
	if !ok {
		slot = make(chan struct{}, 1)
		s.locks[conversationID] = slot
	}
	s.locksMu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
