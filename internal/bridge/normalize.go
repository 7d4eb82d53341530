package bridge

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// webPrefixPattern matches the bridge's own outbound formatting,
// **name**: rest, across newlines in the rest.
var webPrefixPattern = regexp.MustCompile(`(?s)^\*\*(.+?)\*\*: (.*)$`)

// imageURLPattern is a heuristic match for bare image links in body text.
// It can over-match (non-images behind matching extensions) and under-match
// (CDN links without extensions); kept for compatibility with the web client.
var imageURLPattern = regexp.MustCompile(`(?i)https?://[^\s<>]+\.(?:jpg|jpeg|png|gif|webp|bmp|svg)`)

// Normalize converts a raw Discord message into the unified record shape:
// source/bot classification, username unwrap for round-tripped web messages,
// media extraction, and reply resolution. Reply fetch failures are non-fatal
// and leave ReplyTo nil.
func (b *Bridge) Normalize(ctx context.Context, m *discordgo.Message) Message {
	msg := Message{
		ID:        m.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Source:    SourceDiscord,
		Media:     extractMedia(m),
	}

	if m.Author != nil {
		msg.Author = m.Author.Username
		if m.Author.Bot {
			msg.IsBot = true
			if m.WebhookID != "" {
				msg.Source = SourceWebhook
			} else {
				msg.Source = SourceBot
			}
		}
	}

	if b.isOwnMessage(m) {
		if name, rest, ok := unwrapWebPrefix(m.Content); ok {
			msg.Author = name
			msg.Content = rest
			msg.Source = SourceWeb
			msg.IsBot = false
		}
	}

	if ref := b.resolveReply(ctx, m); ref != nil {
		msg.ReplyTo = ref
	}

	return msg
}

// isOwnMessage reports whether the message was authored by the bridge's own
// bot account.
func (b *Bridge) isOwnMessage(m *discordgo.Message) bool {
	bot := b.gw.BotUser()
	return bot != nil && m.Author != nil && m.Author.ID == bot.ID
}

// unwrapWebPrefix undoes the bridge's outbound **name**: content wrapping.
func unwrapWebPrefix(content string) (author, rest string, ok bool) {
	groups := webPrefixPattern.FindStringSubmatch(content)
	if groups == nil {
		return "", "", false
	}
	return groups[1], groups[2], true
}

// resolveReply builds the embedded reply reference for a reply message. The
// referenced message comes from the gateway payload when present, otherwise
// it is fetched by ID; on failure the reply is dropped.
func (b *Bridge) resolveReply(ctx context.Context, m *discordgo.Message) *ReplyRef {
	if m.MessageReference == nil || m.MessageReference.MessageID == "" {
		return nil
	}

	referenced := m.ReferencedMessage
	if referenced == nil {
		channelID := m.MessageReference.ChannelID
		if channelID == "" {
			channelID = m.ChannelID
		}
		fetched, err := b.gw.ChannelMessage(ctx, channelID, m.MessageReference.MessageID)
		if err != nil {
			b.log.Debug("failed to resolve reply target",
				"message_id", m.ID,
				"reply_to", m.MessageReference.MessageID,
				"error", err)
			return nil
		}
		referenced = fetched
	}

	ref := &ReplyRef{
		ID:        referenced.ID,
		Content:   referenced.Content,
		Timestamp: referenced.Timestamp,
	}
	if referenced.Author != nil {
		ref.Author = referenced.Author.Username
	}
	if b.isOwnMessage(referenced) {
		if name, rest, ok := unwrapWebPrefix(referenced.Content); ok {
			ref.Author = name
			ref.Content = rest
		}
	}
	return ref
}

// extractMedia collects image references in order: attachments with an
// image content type, embed images before thumbnails, then URL matches in
// the body text. Duplicates are kept.
func extractMedia(m *discordgo.Message) []MediaRef {
	media := []MediaRef{}

	for _, a := range m.Attachments {
		if a == nil || !strings.HasPrefix(a.ContentType, "image/") {
			continue
		}
		media = append(media, MediaRef{URL: a.URL, Type: "image", Filename: a.Filename})
	}

	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		if e.Image != nil && e.Image.URL != "" {
			media = append(media, MediaRef{URL: e.Image.URL, Type: "image", Filename: urlFilename(e.Image.URL)})
		}
		if e.Thumbnail != nil && e.Thumbnail.URL != "" {
			media = append(media, MediaRef{URL: e.Thumbnail.URL, Type: "image", Filename: urlFilename(e.Thumbnail.URL)})
		}
	}

	for _, match := range imageURLPattern.FindAllString(m.Content, -1) {
		media = append(media, MediaRef{URL: match, Type: "image", Filename: urlFilename(match)})
	}

	return media
}

func urlFilename(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return path.Base(raw)
	}
	return path.Base(u.Path)
}
