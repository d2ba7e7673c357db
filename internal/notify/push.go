package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/questlog/questlog/internal/adapter"
)

// Pusher defines an interface for push delivery to enable mocking
type Pusher interface {
	// Push sends a notification to a topic
	Push(ctx context.Context, topic, title, body string) error
}

// NtfyPusher implements Pusher against an ntfy server
type NtfyPusher struct {
	httpClient adapter.HTTPClient
	serverURL  string
}

// NewNtfyPusher creates a pusher for the given ntfy server
func NewNtfyPusher(httpClient adapter.HTTPClient, serverURL string) Pusher {
	return &NtfyPusher{
		httpClient: httpClient,
		serverURL:  strings.TrimRight(serverURL, "/"),
	}
}

// Push publishes the body to the topic, with the title carried in the ntfy
// Title header
func (p *NtfyPusher) Push(ctx context.Context, topic, title, body string) error {
	url := fmt.Sprintf("%s/%s", p.serverURL, topic)
	headers := map[string]string{"Title": title}

	if _, err := p.httpClient.PostBytes(ctx, url, headers, []byte(body)); err != nil {
		return fmt.Errorf("failed to publish to ntfy: %w", err)
	}

	return nil
}
