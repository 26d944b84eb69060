package discord

import (
	"context"

	"menreiki/app/service/access"
	"menreiki/app/service/relay"

	"github.com/bwmarrin/discordgo"
	"github.com/elliotchance/pie/v2"
)

func messageEvent(botID string, m *discordgo.MessageCreate, state *discordgo.State) relay.Event {
	ev := relay.Event{
		ConversationID: m.ChannelID,
		Text:           m.Content,
		BotID:          botID,
	}
	if m.Author != nil {
		ev.SenderID = m.Author.ID
	}

	if m.GuildID == "" {
		ev.IsDirectOrMentioned = true
		return ev
	}

	ev.IsDirectOrMentioned = botID != "" && pie.Any(m.Mentions, func(u *discordgo.User) bool {
		return u != nil && u.ID == botID
	})
	ev.Member = guildMember(m, state)

	return ev
}

func guildMember(m *discordgo.MessageCreate, state *discordgo.State) access.MemberRef {
	if m.Member != nil {
		return access.GuildMemberRef{Member: m.Member}
	}

	if state != nil && m.Author != nil {
		if member, err := state.Member(m.GuildID, m.Author.ID); err == nil {
			return access.GuildMemberRef{Member: member}
		}
	}

	return access.GuildMemberRef{}
}

type messageReplier struct {
	session *discordgo.Session
	message *discordgo.Message
}

func (r *messageReplier) Typing(ctx context.Context) error {
	return r.session.ChannelTyping(r.message.ChannelID, discordgo.WithContext(ctx))
}

func (r *messageReplier) Reply(ctx context.Context, text string) error {
	_, err := r.session.ChannelMessageSendReply(
		r.message.ChannelID,
		text,
		r.message.Reference(),
		discordgo.WithContext(ctx),
	)

	return err
}
