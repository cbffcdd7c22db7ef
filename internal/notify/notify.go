// Package notify announces newly qualified results to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// Message is the payload published for every new result.
type Message struct {
	Crawl       string              `json:"crawl"`
	RunID       string              `json:"run_id,omitempty"`
	Result      crawler.ResultEntry `json:"result"`
	AnnouncedAt time.Time           `json:"announced_at"`
}

// NewMessage wraps entry for publication.
func NewMessage(crawl, runID string, entry crawler.ResultEntry, now time.Time) Message {
	return Message{Crawl: crawl, RunID: runID, Result: entry, AnnouncedAt: now.UTC()}
}

// Marshal encodes m as JSON.
func (m Message) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	return data, nil
}

// LogNotifier writes each new result to the log.
type LogNotifier struct {
	logger *zap.Logger
}

var _ crawler.Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a notifier that logs at info level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs entry.
func (n *LogNotifier) Notify(_ context.Context, entry crawler.ResultEntry) error {
	n.logger.Info("new result",
		zap.String("id", entry.ID),
		zap.String("title", entry.Title),
		zap.String("channel", entry.ChannelTitle),
		zap.String("url", entry.URL),
	)
	return nil
}
