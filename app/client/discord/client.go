package discord

import (
	"context"
	"fmt"
	"log/slog"

	"menreiki/app/config"
	"menreiki/app/service/relay"

	"github.com/bwmarrin/discordgo"
	"github.com/samber/do"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsDirectMessageTyping |
	discordgo.IntentsMessageContent

var _ do.Shutdownable = (*Client)(nil)

type Client struct {
	ctx      context.Context
	cfg      *config.Config
	relaySvc *relay.Service
	session  *discordgo.Session
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = intents

	client := &Client{
		ctx:      do.MustInvoke[context.Context](di),
		cfg:      cfg,
		relaySvc: do.MustInvoke[*relay.Service](di),
		session:  session,
	}
	client.setupListeners()

	return client, nil
}

func (c *Client) setupListeners() {
	c.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Connected to Discord gateway",
			"user", r.User.Username,
			"guilds", len(r.Guilds),
		)
	})

	c.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		ev := messageEvent(botID(s), m, s.State)

		err := c.relaySvc.HandleMessage(c.ctx, ev, &messageReplier{session: s, message: m.Message})
		if err != nil {
			slog.Warn("HandleMessage error",
				"conversation_id", ev.ConversationID,
				"error", err,
			)
		}
	})

	c.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		c.handleInteraction(s, i)
	})
}

// Run opens the gateway connection and blocks until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	if err := c.registerCommands(); err != nil {
		return err
	}

	<-ctx.Done()

	return nil
}

func (c *Client) Shutdown() error {
	return c.session.Close()
}

func botID(s *discordgo.Session) string {
	if s.State == nil || s.State.User == nil {
		return ""
	}

	return s.State.User.ID
}
