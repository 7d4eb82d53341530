package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edgard/webcord/internal/bridge"
	"github.com/edgard/webcord/internal/server"
)

type fakeBridge struct {
	snapshot    bridge.Snapshot
	snapshotErr error
	submitMsg   bridge.Message
	submitErr   error
	typingErr   error
	purgeCount  int
	purgeErr    error

	lastAuthor  string
	lastContent string
	lastReplyTo *bridge.ReplyRef
}

func (f *fakeBridge) ValidatePassword(password string) bool {
	return password == "secret"
}

func (f *fakeBridge) Snapshot(_ context.Context, password string) (bridge.Snapshot, error) {
	if !f.ValidatePassword(password) {
		return bridge.Snapshot{}, bridge.ErrUnauthorized
	}
	return f.snapshot, f.snapshotErr
}

func (f *fakeBridge) SubmitWebMessage(_ context.Context, author, content, password string, replyTo *bridge.ReplyRef) (bridge.Message, error) {
	if !f.ValidatePassword(password) {
		return bridge.Message{}, bridge.ErrUnauthorized
	}
	f.lastAuthor, f.lastContent, f.lastReplyTo = author, content, replyTo
	return f.submitMsg, f.submitErr
}

func (f *fakeBridge) SetTyping(_ context.Context, _, password string, _ bool) error {
	if !f.ValidatePassword(password) {
		return bridge.ErrUnauthorized
	}
	return f.typingErr
}

func (f *fakeBridge) PurgeBotMessages(password string) (int, error) {
	if !f.ValidatePassword(password) {
		return 0, bridge.ErrUnauthorized
	}
	return f.purgeCount, f.purgeErr
}

func newTestServer(fb *fakeBridge) *server.Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return server.New(fb, server.Options{Addr: ":0"}, log)
}

func post(t *testing.T, s *server.Server, path, body, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		body      string
		wantValid bool
	}{
		{name: "correct", body: `{"password":"secret"}`, wantValid: true},
		{name: "incorrect", body: `{"password":"nope"}`, wantValid: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := post(t, newTestServer(&fakeBridge{}), "/api/validate-password", tt.body, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var resp map[string]bool
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["valid"] != tt.wantValid {
				t.Errorf("valid = %v, want %v", resp["valid"], tt.wantValid)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()

	fb := &fakeBridge{snapshot: bridge.Snapshot{
		Messages: []bridge.Message{{ID: "m1", Author: "alice", Content: "hi", Source: bridge.SourceDiscord, Media: []bridge.MediaRef{}}},
		Typing:   []string{"bob"},
	}}

	rec := post(t, newTestServer(fb), "/api/messages", `{"password":"secret"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Messages []bridge.Message `json:"messages"`
		Typing   []string         `json:"typing"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != "m1" {
		t.Errorf("messages = %v, want [m1]", resp.Messages)
	}
	if len(resp.Typing) != 1 || resp.Typing[0] != "bob" {
		t.Errorf("typing = %v, want [bob]", resp.Typing)
	}
}

func TestMessagesUnauthorized(t *testing.T) {
	t.Parallel()

	rec := post(t, newTestServer(&fakeBridge{}), "/api/messages", `{"password":"nope"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSend(t *testing.T) {
	t.Parallel()

	fb := &fakeBridge{submitMsg: bridge.Message{ID: "web-1", Author: "alice", Content: "hi", Source: bridge.SourceWeb}}
	body := `{"message":"hi","username":"alice","password":"secret","replyTo":{"id":"m9","author":"bob","content":"orig"}}`

	rec := post(t, newTestServer(fb), "/api/send", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool           `json:"success"`
		Message bridge.Message `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Message.ID != "web-1" {
		t.Errorf("response = %+v, want success with message web-1", resp)
	}

	if fb.lastAuthor != "alice" || fb.lastContent != "hi" {
		t.Errorf("bridge got author=%q content=%q", fb.lastAuthor, fb.lastContent)
	}
	if fb.lastReplyTo == nil || fb.lastReplyTo.ID != "m9" || fb.lastReplyTo.Author != "bob" {
		t.Errorf("replyTo = %+v, want id m9 author bob", fb.lastReplyTo)
	}
}

func TestSendErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		submitErr  error
		wantStatus int
	}{
		{name: "empty message", submitErr: bridge.ErrEmptyMessage, wantStatus: http.StatusBadRequest},
		{name: "channel not found", submitErr: bridge.ErrChannelNotFound, wantStatus: http.StatusNotFound},
		{name: "backend failure", submitErr: io.ErrUnexpectedEOF, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb := &fakeBridge{submitErr: tt.submitErr}
			rec := post(t, newTestServer(fb), "/api/send", `{"message":"hi","username":"alice","password":"secret"}`, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestTyping(t *testing.T) {
	t.Parallel()

	rec := post(t, newTestServer(&fakeBridge{}), "/api/typing", `{"username":"alice","password":"secret","isTyping":true}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["success"] {
		t.Error("success = false, want true")
	}
}

func TestPurge(t *testing.T) {
	t.Parallel()

	fb := &fakeBridge{purgeCount: 7}
	rec := post(t, newTestServer(fb), "/api/purge-bot-messages", `{"password":"secret"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Success      bool   `json:"success"`
		RemovedCount int    `json:"removedCount"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.RemovedCount != 7 {
		t.Errorf("response = %+v, want success with removedCount 7", resp)
	}
}

func TestInvalidBody(t *testing.T) {
	t.Parallel()

	rec := post(t, newTestServer(&fakeBridge{}), "/api/messages", `{not json`, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	t.Parallel()

	s := newTestServer(&fakeBridge{})

	first := post(t, s, "/api/validate-password", `{"password":"secret"}`, "198.51.100.7:1111")
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := post(t, s, "/api/validate-password", `{"password":"secret"}`, "198.51.100.7:2222")
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", second.Code)
	}

	// A different client IP has its own bucket.
	other := post(t, s, "/api/validate-password", `{"password":"secret"}`, "203.0.113.9:3333")
	if other.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", other.Code)
	}

	// The unlimited polling endpoint is unaffected.
	poll := post(t, s, "/api/messages", `{"password":"secret"}`, "198.51.100.7:4444")
	if poll.Code != http.StatusOK {
		t.Errorf("poll status = %d, want 200", poll.Code)
	}
}
