// Package access decides whether a guild member may talk to the bot.
package access

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/elliotchance/pie/v2"
)

var ErrAccessDenied = errors.New("access denied: missing required role")

// MemberRef identifies a guild member in one of the shapes the gateway
// delivers. It is resolved once when an event arrives.
type MemberRef interface {
	roles() []string
}

// GuildMemberRef is a member attached to a guild message or taken from the
// session state cache.
type GuildMemberRef struct {
	Member *discordgo.Member
}

func (r GuildMemberRef) roles() []string {
	if r.Member == nil {
		return nil
	}

	return r.Member.Roles
}

// InteractionMemberRef carries the role ids sent along with an interaction.
type InteractionMemberRef struct {
	Roles []string
}

func (r InteractionMemberRef) roles() []string {
	return r.Roles
}

func HasRole(member MemberRef, roleID string) bool {
	if member == nil {
		return false
	}

	return pie.Contains(member.roles(), roleID)
}

func ValidateHasRole(member MemberRef, roleID string) error {
	if HasRole(member, roleID) {
		return nil
	}

	return ErrAccessDenied
}
