package bridge

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Gateway is the narrow slice of the chat backend the bridge needs. The
// discord package provides the production implementation; tests use a fake.
type Gateway interface {
	// BotUser returns the bridge's own bot identity, or nil before login.
	BotUser() *discordgo.User

	Channel(ctx context.Context, channelID string) (*discordgo.Channel, error)
	UserChannelCreate(ctx context.Context, userID string) (*discordgo.Channel, error)
	ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error)

	// ChannelMessages returns up to limit of the most recent messages in
	// the channel, newest first.
	ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error)

	SendMessage(ctx context.Context, channelID string, send *discordgo.MessageSend) (*discordgo.Message, error)
	Typing(ctx context.Context, channelID string) error
	SetStatus(ctx context.Context, online bool) error
}
