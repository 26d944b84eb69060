package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"menreiki/app/service/access"
	"menreiki/app/service/relay"

	"github.com/bwmarrin/discordgo"
)

const (
	askCommand      = "ask"
	askPromptOption = "prompt"
)

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        askCommand,
		Description: "Ask the bot something",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        askPromptOption,
				Description: "What to ask",
				Required:    true,
			},
		},
	},
}

// registerCommands replaces the application's commands, for one guild when
// a guild id is configured and globally otherwise.
func (c *Client) registerCommands() error {
	_, err := c.session.ApplicationCommandBulkOverwrite(c.cfg.Discord.AppID, c.cfg.Discord.GuildID, commands)
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	slog.Info("Registered commands",
		"count", len(commands),
		"guild_id", c.cfg.Discord.GuildID,
	)

	return nil
}

func (c *Client) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	if data.Name != askCommand {
		return
	}

	ev := interactionEvent(botID(s), i)

	err := answerInteraction(c.ctx, c.relaySvc, ev, &interactionReplier{responder: s, interaction: i.Interaction})
	if err != nil {
		slog.Warn("HandleMessage error",
			"conversation_id", ev.ConversationID,
			"command", data.Name,
			"error", err,
		)
	}
}

type interactionHandler interface {
	Authorize(ev relay.Event) error
	HandleMessage(ctx context.Context, ev relay.Event, replier relay.Replier) error
}

// answerInteraction runs a command through the relay. Denied senders get an
// ephemeral notice; a failed exchange removes the pending deferred response.
func answerInteraction(ctx context.Context, h interactionHandler, ev relay.Event, r *interactionReplier) error {
	if err := h.Authorize(ev); err != nil {
		return r.Deny(ctx, err)
	}

	if err := h.HandleMessage(ctx, ev, r); err != nil {
		if abortErr := r.Abort(ctx); abortErr != nil {
			slog.Warn("Failed to remove deferred response", "error", abortErr)
		}
		return err
	}

	return nil
}

func interactionEvent(botID string, i *discordgo.InteractionCreate) relay.Event {
	ev := relay.Event{
		ConversationID:      i.ChannelID,
		BotID:               botID,
		IsDirectOrMentioned: true,
	}

	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == askPromptOption {
			ev.Text = opt.StringValue()
		}
	}

	switch {
	case i.Member != nil:
		if i.Member.User != nil {
			ev.SenderID = i.Member.User.ID
		}
		ev.Member = access.InteractionMemberRef{Roles: i.Member.Roles}
	case i.User != nil:
		ev.SenderID = i.User.ID
	}

	return ev
}

// interactionResponder is the part of *discordgo.Session used to answer
// interactions.
type interactionResponder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// interactionReplier defers the response on Typing and answers with
// follow-up messages.
type interactionReplier struct {
	responder   interactionResponder
	interaction *discordgo.Interaction

	deferOnce sync.Once
	deferred  bool
	deferErr  error
}

func (r *interactionReplier) Typing(ctx context.Context) error {
	r.deferOnce.Do(func() {
		r.deferErr = r.responder.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}, discordgo.WithContext(ctx))
		r.deferred = r.deferErr == nil
	})

	return r.deferErr
}

func (r *interactionReplier) Reply(ctx context.Context, text string) error {
	if err := r.Typing(ctx); err != nil {
		return err
	}

	_, err := r.responder.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: text,
	}, discordgo.WithContext(ctx))

	return err
}

// Deny answers with an ephemeral message explaining the refusal.
func (r *interactionReplier) Deny(ctx context.Context, reason error) error {
	return r.responder.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: reason.Error(),
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
}

// Abort deletes the deferred "thinking" response, if one was sent.
func (r *interactionReplier) Abort(ctx context.Context) error {
	if !r.deferred {
		return nil
	}

	return r.responder.InteractionResponseDelete(r.interaction, discordgo.WithContext(ctx))
}
