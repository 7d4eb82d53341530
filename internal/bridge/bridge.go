// Package bridge implements the message bridge between a single Discord
// channel or DM and the password-gated web chat client: it owns the bounded
// in-memory history, the typing-indicator table, and the presence state, and
// normalizes messages from both sides into one record shape.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	// maxMessages bounds the in-memory history; oldest records are
	// evicted first.
	maxMessages = 100

	// typingTimeout is how long a typing entry stays active without a
	// refresh. typingTolerance guards the expiry timer against deleting
	// an entry that was refreshed just before the timer fired.
	typingTimeout   = 5 * time.Second
	typingTolerance = 100 * time.Millisecond

	// presenceTimeout is how long after the last web request the bridge
	// is still advertised as online.
	presenceTimeout = 15 * time.Second

	// purgeLimit caps how many bot messages a single purge removes.
	purgeLimit = 100

	// quoteLimit caps the quoted text in the inline reply fallback.
	quoteLimit = 100
)

var (
	ErrUnauthorized    = errors.New("invalid password")
	ErrEmptyMessage    = errors.New("empty message")
	ErrChannelNotFound = errors.New("channel not found")
)

// Options configures a Bridge.
type Options struct {
	// Password is the shared secret gating every web operation.
	Password string

	// ChannelID is the bridged destination: tried as a channel ID first,
	// then as a user ID for a DM.
	ChannelID string

	// HistoryDays is the age window for the startup history seed.
	HistoryDays int
}

// Bridge owns the bridge state and exposes the operations consumed by the
// HTTP layer and the gateway message handler.
type Bridge struct {
	gw   Gateway
	log  *slog.Logger
	opts Options

	mu          sync.Mutex
	history     []Message
	typing      map[string]time.Time
	lastRequest time.Time
	online      bool
	destID      string

	now func() time.Time
}

// New creates a Bridge on top of the given gateway. Presence starts idle
// and history starts empty until LoadHistory seeds it.
func New(gw Gateway, opts Options, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 7
	}
	return &Bridge{
		gw:     gw,
		log:    log.With("component", "bridge"),
		opts:   opts,
		typing: make(map[string]time.Time),
		now:    time.Now,
	}
}

// ValidatePassword reports whether the supplied password matches the
// configured secret.
func (b *Bridge) ValidatePassword(password string) bool {
	return password == b.opts.Password
}

// HandleIncoming normalizes and appends a message received from the
// gateway. Messages outside the bridged channel are ignored, as are the
// bridge's own outbound messages, which were already recorded at send time.
func (b *Bridge) HandleIncoming(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil {
		return
	}
	if !b.isBridgedChannel(m.ChannelID) {
		return
	}
	if b.isOwnMessage(m) {
		return
	}

	msg := b.Normalize(ctx, m)
	b.Append(msg)
	b.log.Debug("message bridged",
		"id", msg.ID,
		"author", msg.Author,
		"source", msg.Source)
}

// Append pushes a record onto the history, evicting the oldest records once
// the bound is exceeded.
func (b *Bridge) Append(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.append(msg)
}

func (b *Bridge) append(msg Message) {
	b.history = append(b.history, msg)
	if n := len(b.history); n > maxMessages {
		b.history = append(b.history[:0:0], b.history[n-maxMessages:]...)
	}
}

// LoadHistory fetches the recent channel history, keeps messages within the
// configured age window, and replaces the in-memory history with the result
// in ascending creation order. On error the existing history is untouched.
func (b *Bridge) LoadHistory(ctx context.Context) error {
	channelID, err := b.destination(ctx)
	if err != nil {
		return err
	}

	raw, err := b.gw.ChannelMessages(ctx, channelID, maxMessages)
	if err != nil {
		return fmt.Errorf("fetch channel history: %w", err)
	}

	cutoff := b.now().AddDate(0, 0, -b.opts.HistoryDays)
	recent := raw[:0:0]
	for _, m := range raw {
		if m != nil && m.Timestamp.After(cutoff) {
			recent = append(recent, m)
		}
	}
	sort.Slice(recent, func(i, j int) bool {
		return recent[i].Timestamp.Before(recent[j].Timestamp)
	})

	records := make([]Message, 0, len(recent))
	for _, m := range recent {
		records = append(records, b.Normalize(ctx, m))
	}
	if len(records) > maxMessages {
		records = records[len(records)-maxMessages:]
	}

	b.mu.Lock()
	b.history = records
	b.mu.Unlock()

	b.log.Info("history seeded", "messages", len(records), "channel_id", channelID)
	return nil
}

// SubmitWebMessage delivers a web-client message to Discord and records it
// locally. The outbound text carries the **author**: prefix that Normalize
// later unwraps for round-tripped history.
func (b *Bridge) SubmitWebMessage(ctx context.Context, author, content, password string, replyTo *ReplyRef) (Message, error) {
	if !b.ValidatePassword(password) {
		return Message{}, ErrUnauthorized
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyMessage
	}

	channelID, err := b.destination(ctx)
	if err != nil {
		return Message{}, err
	}

	// Best-effort: a failed typing indicator never blocks the send.
	if err := b.gw.Typing(ctx, channelID); err != nil {
		b.log.Debug("typing indicator failed", "error", err)
	}

	send := &discordgo.MessageSend{
		Content: fmt.Sprintf("**%s**: %s", author, content),
	}
	if replyTo != nil && replyTo.ID != "" {
		if _, err := b.gw.ChannelMessage(ctx, channelID, replyTo.ID); err == nil {
			send.Reference = &discordgo.MessageReference{
				MessageID: replyTo.ID,
				ChannelID: channelID,
			}
		} else {
			b.log.Warn("reply target unavailable, falling back to quote",
				"reply_to", replyTo.ID,
				"error", err)
			send.Content = fmt.Sprintf("**%s** replying to **%s**: \"%s\"\n%s",
				author, replyTo.Author, truncate(replyTo.Content, quoteLimit), content)
		}
	}

	if _, err := b.gw.SendMessage(ctx, channelID, send); err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}

	now := b.now()
	msg := Message{
		ID:        fmt.Sprintf("web-%d", now.UnixNano()),
		Author:    author,
		Content:   content,
		Timestamp: now,
		Source:    SourceWeb,
		Media:     []MediaRef{},
	}
	if replyTo != nil && replyTo.ID != "" {
		msg.ReplyTo = replyTo
	}

	b.mu.Lock()
	b.append(msg)
	delete(b.typing, author)
	b.mu.Unlock()

	return msg, nil
}

// SetTyping records or clears a typing entry for a web user. Setting it
// fires a best-effort typing indicator toward Discord and schedules expiry
// of the entry unless it is refreshed in the meantime.
func (b *Bridge) SetTyping(ctx context.Context, username, password string, isTyping bool) error {
	if !b.ValidatePassword(password) {
		return ErrUnauthorized
	}

	b.mu.Lock()
	if !isTyping {
		delete(b.typing, username)
		b.mu.Unlock()
		return nil
	}
	b.typing[username] = b.now()
	b.mu.Unlock()

	if channelID, err := b.destination(ctx); err == nil {
		if err := b.gw.Typing(ctx, channelID); err != nil {
			b.log.Debug("typing indicator failed", "error", err)
		}
	} else {
		b.log.Debug("typing destination unresolved", "error", err)
	}

	time.AfterFunc(typingTimeout, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		last, ok := b.typing[username]
		if ok && b.now().Sub(last) >= typingTimeout-typingTolerance {
			delete(b.typing, username)
		}
	})

	return nil
}

// Snapshot returns the full history and the active typing entries, stamps
// the web-activity timer that drives presence, and pushes an online status
// update when this request wakes the bridge from idle.
func (b *Bridge) Snapshot(ctx context.Context, password string) (Snapshot, error) {
	if !b.ValidatePassword(password) {
		return Snapshot{}, ErrUnauthorized
	}

	now := b.now()

	b.mu.Lock()
	b.lastRequest = now
	wasOnline := b.online
	b.online = true

	typing := []string{}
	for user, last := range b.typing {
		if now.Sub(last) < typingTimeout {
			typing = append(typing, user)
		} else {
			delete(b.typing, user)
		}
	}
	messages := make([]Message, len(b.history))
	copy(messages, b.history)
	b.mu.Unlock()

	sort.Strings(typing)

	if !wasOnline {
		b.pushPresence(ctx, true)
	}

	return Snapshot{Messages: messages, Typing: typing}, nil
}

// PresenceTick moves the bridge to idle once the web client has stopped
// polling for longer than the presence timeout. It is run on a fixed
// schedule; the status update is only pushed on the transition.
func (b *Bridge) PresenceTick(ctx context.Context) {
	b.mu.Lock()
	idle := b.online && b.now().Sub(b.lastRequest) >= presenceTimeout
	if idle {
		b.online = false
	}
	b.mu.Unlock()

	if idle {
		b.pushPresence(ctx, false)
	}
}

// pushPresence advertises the online/idle state to Discord. Failures are
// logged only; local state reflects intent, not confirmed delivery.
func (b *Bridge) pushPresence(ctx context.Context, online bool) {
	if err := b.gw.SetStatus(ctx, online); err != nil {
		b.log.Warn("presence update failed", "online", online, "error", err)
		return
	}
	b.log.Debug("presence updated", "online", online)
}

// PurgeBotMessages removes up to purgeLimit bot-flagged records from the
// local history, scanning newest first, and returns the count removed. The
// Discord-side history is unaffected.
func (b *Bridge) PurgeBotMessages(password string) (int, error) {
	if !b.ValidatePassword(password) {
		return 0, ErrUnauthorized
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	remove := make([]bool, len(b.history))
	removed := 0
	for i := len(b.history) - 1; i >= 0 && removed < purgeLimit; i-- {
		if b.history[i].IsBot {
			remove[i] = true
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}

	kept := make([]Message, 0, len(b.history)-removed)
	for i, m := range b.history {
		if !remove[i] {
			kept = append(kept, m)
		}
	}
	b.history = kept

	b.log.Info("purged bot messages", "removed", removed, "remaining", len(kept))
	return removed, nil
}

// destination resolves the bridged channel: the configured ID as a channel,
// falling back to opening a DM with it as a user ID. The result is cached
// so incoming gateway messages can be filtered cheaply.
func (b *Bridge) destination(ctx context.Context) (string, error) {
	b.mu.Lock()
	cached := b.destID
	b.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	var resolved string
	if ch, err := b.gw.Channel(ctx, b.opts.ChannelID); err == nil {
		resolved = ch.ID
	} else {
		b.log.Debug("channel lookup failed, trying as user DM",
			"channel_id", b.opts.ChannelID,
			"error", err)
		ch, dmErr := b.gw.UserChannelCreate(ctx, b.opts.ChannelID)
		if dmErr != nil {
			return "", fmt.Errorf("%w: %s", ErrChannelNotFound, b.opts.ChannelID)
		}
		resolved = ch.ID
	}

	b.mu.Lock()
	b.destID = resolved
	b.mu.Unlock()
	return resolved, nil
}

// isBridgedChannel reports whether a gateway message belongs to the bridged
// destination. Before the destination has been resolved it falls back to
// comparing against the configured ID.
func (b *Bridge) isBridgedChannel(channelID string) bool {
	b.mu.Lock()
	dest := b.destID
	b.mu.Unlock()
	if dest != "" {
		return channelID == dest
	}
	return channelID == b.opts.ChannelID
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
