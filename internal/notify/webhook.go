package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultQueueSize bounds the webhook delivery queue.
const DefaultQueueSize = 256

const webhookTimeout = 10 * time.Second

// Discord embed accent colors, one per event kind.
const (
	colorSuccess    = 0x00ff88
	colorFailure    = 0xff0000
	colorConnect    = 0x0099ff
	colorDisconnect = 0x808080
)

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields,omitempty"`
	Timestamp   string       `json:"timestamp"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

type job struct {
	url     string
	payload webhookPayload
}

// WebhookSink posts notifications to Discord-compatible webhooks: audit
// events (verification, connect, disconnect) to logsURL and chat message
// copies to chatURL. A single worker drains a bounded queue; enqueueing
// never blocks, and overflow drops the event.
type WebhookSink struct {
	logsURL string
	chatURL string
	queue   chan job
	client  *http.Client
	done    chan struct{}
}

// NewWebhookSink creates a sink and starts its delivery worker. Either
// URL may be empty; events for an unconfigured URL are discarded.
func NewWebhookSink(logsURL, chatURL string, queueSize int) *WebhookSink {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	s := &WebhookSink{
		logsURL: logsURL,
		chatURL: chatURL,
		queue:   make(chan job, queueSize),
		client:  &http.Client{Timeout: webhookTimeout},
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Notify implements Sink. It builds the webhook payload and hands it to
// the delivery queue without blocking.
func (s *WebhookSink) Notify(kind Kind, fields Fields) {
	url, payload := s.build(kind, fields)
	if url == "" {
		return
	}
	select {
	case s.queue <- job{url: url, payload: payload}:
	default:
		slog.Warn("Webhook queue full, dropping notification", "kind", string(kind))
	}
}

// Close stops the worker after draining queued deliveries.
func (s *WebhookSink) Close() {
	close(s.queue)
	<-s.done
}

func (s *WebhookSink) build(kind Kind, fields Fields) (string, webhookPayload) {
	username := fields["username"]
	code := fields["code"]
	now := time.Now()

	switch kind {
	case KindChatMessage:
		return s.chatURL, webhookPayload{
			Content: fmt.Sprintf("**%s:** %s", username, fields["message"]),
		}
	case KindVerifySucceeded:
		return s.logsURL, webhookPayload{Embeds: []embed{{
			Title:       "Verification succeeded",
			Description: fmt.Sprintf("**%s** verified", username),
			Color:       colorSuccess,
			Fields:      codeTimeFields(code, now),
			Timestamp:   now.Format(time.RFC3339),
		}}}
	case KindVerifyFailed:
		return s.logsURL, webhookPayload{Embeds: []embed{{
			Title:       "Verification failed",
			Description: fmt.Sprintf("**%s** tried an invalid code", username),
			Color:       colorFailure,
			Fields:      codeTimeFields(code, now),
			Timestamp:   now.Format(time.RFC3339),
		}}}
	case KindUserConnected:
		return s.logsURL, webhookPayload{Embeds: []embed{{
			Title:       "User connected",
			Description: fmt.Sprintf("**%s** joined the chat", username),
			Color:       colorConnect,
			Fields:      codeTimeFields(code, now),
			Timestamp:   now.Format(time.RFC3339),
		}}}
	case KindUserDisconnected:
		return s.logsURL, webhookPayload{Embeds: []embed{{
			Title:       "User disconnected",
			Description: fmt.Sprintf("**%s** left the chat", username),
			Color:       colorDisconnect,
			Fields:      codeTimeFields(code, now),
			Timestamp:   now.Format(time.RFC3339),
		}}}
	default:
		slog.Warn("Unknown notification kind", "kind", string(kind))
		return "", webhookPayload{}
	}
}

func codeTimeFields(code string, now time.Time) []embedField {
	return []embedField{
		{Name: "Code", Value: code, Inline: true},
		{Name: "Time", Value: now.Format(time.RFC1123), Inline: true},
	}
}

func (s *WebhookSink) run() {
	defer close(s.done)
	for j := range s.queue {
		s.post(j)
	}
}

func (s *WebhookSink) post(j job) {
	body, err := json.Marshal(j.payload)
	if err != nil {
		slog.Error("Failed to encode webhook payload", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to build webhook request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("Webhook delivery failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		slog.Warn("Webhook rejected", "status", resp.StatusCode)
	}
}
