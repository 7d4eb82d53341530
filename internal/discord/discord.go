// Package discord adapts a discordgo session to the narrow gateway
// interface the bridge consumes, and fans incoming message events into it.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/edgard/webcord/internal/resilience"
)

// Session wraps a discordgo session. It implements bridge.Gateway.
type Session struct {
	s   *discordgo.Session
	log *slog.Logger
}

// New creates a Discord session for the given bot token. The connection is
// not opened until Open is called.
func New(token string, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}

	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	d := &Session{
		s:   s,
		log: log.With("component", "discord"),
	}

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		d.log.Info("logged in", "username", r.User.Username, "user_id", r.User.ID)
	})
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Connect) {
		d.log.Info("gateway connected")
	})
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		d.log.Warn("gateway disconnected, client will reconnect")
	})
	s.AddHandler(func(_ *discordgo.Session, rl *discordgo.RateLimit) {
		d.log.Warn("rate limited by discord", "retry_after", rl.RetryAfter)
	})

	return d, nil
}

// Open connects to the gateway, retrying the initial connect with backoff.
// Once connected, discordgo handles reconnects on its own. The bot starts
// advertised as idle until web activity wakes it.
func (d *Session) Open(ctx context.Context) error {
	err := resilience.WithRetry(ctx, func(context.Context) error {
		return d.s.Open()
	}, resilience.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("open gateway connection: %w", err)
	}

	if err := d.SetStatus(ctx, false); err != nil {
		d.log.Warn("failed to set initial presence", "error", err)
	}
	return nil
}

// Close closes the gateway connection.
func (d *Session) Close() error {
	return d.s.Close()
}

// OnMessageCreate registers fn for every message-create gateway event.
func (d *Session) OnMessageCreate(fn func(ctx context.Context, m *discordgo.Message)) {
	d.s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		fn(context.Background(), m.Message)
	})
}

// BotUser returns the logged-in bot identity, or nil before the session is
// ready.
func (d *Session) BotUser() *discordgo.User {
	if d.s.State == nil {
		return nil
	}
	return d.s.State.User
}

func (d *Session) Channel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	return d.s.Channel(channelID, discordgo.WithContext(ctx))
}

func (d *Session) UserChannelCreate(ctx context.Context, userID string) (*discordgo.Channel, error) {
	return d.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
}

func (d *Session) ChannelMessage(ctx context.Context, channelID, messageID string) (*discordgo.Message, error) {
	return d.s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
}

func (d *Session) ChannelMessages(ctx context.Context, channelID string, limit int) ([]*discordgo.Message, error) {
	return d.s.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
}

func (d *Session) SendMessage(ctx context.Context, channelID string, send *discordgo.MessageSend) (*discordgo.Message, error) {
	return d.s.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
}

func (d *Session) Typing(ctx context.Context, channelID string) error {
	return d.s.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// SetStatus advertises the bridge as online or idle (do-not-disturb) on
// Discord. Status updates ride the gateway connection, so the context is
// unused.
func (d *Session) SetStatus(_ context.Context, online bool) error {
	status := string(discordgo.StatusDoNotDisturb)
	if online {
		status = string(discordgo.StatusOnline)
	}
	return d.s.UpdateStatusComplex(discordgo.UpdateStatusData{Status: status})
}
