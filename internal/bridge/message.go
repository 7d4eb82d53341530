package bridge

import "time"

// Source identifies where a message record originated.
type Source string

const (
	// SourceDiscord is a message typed by a regular Discord user.
	SourceDiscord Source = "discord"
	// SourceWebhook is a message delivered through a Discord webhook.
	SourceWebhook Source = "webhook"
	// SourceBot is a message from a bot account other than a webhook.
	SourceBot Source = "bot"
	// SourceWeb is a message submitted by the web client, either locally
	// or recovered from the bridge's own **name**: prefix wrapping.
	SourceWeb Source = "web"
)

// Message is the unified record shape shared by Discord-originated and
// web-submitted messages.
type Message struct {
	ID        string     `json:"id"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
	Source    Source     `json:"source"`
	IsBot     bool       `json:"isBot"`
	Media     []MediaRef `json:"media"`
	ReplyTo   *ReplyRef  `json:"replyTo"`
}

// MediaRef points at an image found in a message: attachments, embed
// image/thumbnail fields, or bare image URLs in the body text.
type MediaRef struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

// ReplyRef is the referenced message embedded in a reply, after the
// username-unwrap rule has been applied to it.
type ReplyRef struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is the poll payload for the web client: the full current history
// and the usernames with an active typing entry.
type Snapshot struct {
	Messages []Message `json:"messages"`
	Typing   []string  `json:"typing"`
}
