package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"menreiki/app/config"
	"menreiki/app/service/access"
	"menreiki/app/service/chat"
	"menreiki/app/util/chunk"
	"menreiki/app/util/mylog"

	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	EmptyPromptReply = "Sorry, I couldn't understand your message. Please try rephrasing it."
	EmptyReplyReply  = "Sorry, I seem to be having trouble thinking. Please try saying it in a different way."
)

// Event is an inbound message as seen by the relay.
type Event struct {
	ConversationID string
	Text           string
	SenderID       string
	BotID          string
	// IsDirectOrMentioned is set for direct messages, messages mentioning
	// the bot and explicit command invocations.
	IsDirectOrMentioned bool
	// Member is nil outside of guilds.
	Member access.MemberRef
}

// Replier delivers output back to where the event came from.
type Replier interface {
	Typing(ctx context.Context) error
	Reply(ctx context.Context, text string) error
}

type Exchanger interface {
	Exchange(ctx context.Context, conversationID, prompt string) (string, error)
}

type Service struct {
	exchanger        Exchanger
	maxMessageLength int
	requiredRoleID   string
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[*chat.Service](di),
		cfg.Discord.MaxMessageLength,
		cfg.Discord.RequiredRoleID,
	), nil
}

func NewService(exchanger Exchanger, maxMessageLength int, requiredRoleID string) *Service {
	if maxMessageLength <= 0 {
		maxMessageLength = config.DefaultMaxMessageLength
	}

	return &Service{
		exchanger:        exchanger,
		maxMessageLength: maxMessageLength,
		requiredRoleID:   requiredRoleID,
	}
}

// Accepts reports whether the event should be answered at all.
func (s *Service) Accepts(ev Event) bool {
	if ev.SenderID == ev.BotID || !ev.IsDirectOrMentioned {
		return false
	}

	return s.Authorize(ev) == nil
}

// Authorize checks the configured role requirement. Without a member there
// is nothing to check the role against, so such senders are denied.
func (s *Service) Authorize(ev Event) error {
	if s.requiredRoleID == "" {
		return nil
	}

	return access.ValidateHasRole(ev.Member, s.requiredRoleID)
}

// HandleMessage answers ev through replier. Ignored events return nil.
func (s *Service) HandleMessage(ctx context.Context, ev Event, replier Replier) error {
	if !s.Accepts(ev) {
		return nil
	}

	if err := replier.Typing(ctx); err != nil {
		slog.Debug("Failed to send typing indicator", "error", err)
	}

	if ev.Text == "" {
		return s.send(ctx, replier, EmptyPromptReply)
	}

	start := time.Now()

	reply, err := s.exchanger.Exchange(ctx, ev.ConversationID, ev.Text)
	if err != nil {
		return oops.
			In("relay").
			With("conversation_id", ev.ConversationID).
			Wrapf(err, "exchange failed")
	}

	slog.Info("Processed message",
		"conversation_id", ev.ConversationID,
		"sender_id", ev.SenderID,
		"reply_length", len(reply),
		"duration", time.Since(start),
		mylog.TelegramKey, true,
	)

	if strings.TrimSpace(reply) == "" {
		return s.send(ctx, replier, EmptyReplyReply)
	}

	return s.send(ctx, replier, reply)
}

func (s *Service) send(ctx context.Context, replier Replier, text string) error {
	for i, snippet := range chunk.Lines(text, s.maxMessageLength) {
		if err := replier.Reply(ctx, snippet); err != nil {
			return oops.
				In("relay").
				With("snippet", i).
				Wrapf(err, "failed to send reply")
		}
	}

	return nil
}
