// Package pubsub publishes new results to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	"github.com/JakeFAU/dualsub-crawler/internal/notify"
)

// Config selects the topic.
type Config struct {
	ProjectID string
	TopicID   string
	Crawl     string
	RunID     string
}

// Notifier wraps a Pub/Sub topic.
type Notifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	crawl  string
	runID  string
}

var _ crawler.Notifier = (*Notifier)(nil)

// New creates a client, verifies the topic exists and returns a Notifier that
// owns the client.
func New(ctx context.Context, cfg Config) (*Notifier, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	n, err := NewWithClient(ctx, client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return n, nil
}

// NewWithClient builds a Notifier from an existing client.
func NewWithClient(ctx context.Context, client *pubsub.Client, cfg Config) (*Notifier, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}
	return &Notifier{client: client, topic: topic, crawl: cfg.Crawl, runID: cfg.RunID}, nil
}

// Notify publishes entry and waits for the server acknowledgement.
func (n *Notifier) Notify(ctx context.Context, entry crawler.ResultEntry) error {
	data, err := notify.NewMessage(n.crawl, n.runID, entry, time.Now()).Marshal()
	if err != nil {
		return err
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"crawl": n.crawl, "video_id": entry.ID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (n *Notifier) Close() error {
	n.topic.Stop()
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
