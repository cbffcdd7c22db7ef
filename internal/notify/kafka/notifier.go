// Package kafka publishes new results to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	"github.com/JakeFAU/dualsub-crawler/internal/notify"
)

// Config holds the producer settings.
type Config struct {
	Brokers []string
	Topic   string
	Crawl   string
	RunID   string
}

// Notifier sends one message per new result, keyed by video id.
type Notifier struct {
	producer sarama.SyncProducer
	topic    string
	crawl    string
	runID    string
}

var _ crawler.Notifier = (*Notifier)(nil)

// New connects a synchronous producer to the brokers.
func New(cfg Config) (*Notifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Idempotent = true
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewWithProducer(producer, cfg)
}

// NewWithProducer wraps an existing producer.
func NewWithProducer(producer sarama.SyncProducer, cfg Config) (*Notifier, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	return &Notifier{producer: producer, topic: cfg.Topic, crawl: cfg.Crawl, runID: cfg.RunID}, nil
}

// Notify sends entry and waits for the broker acknowledgement.
func (n *Notifier) Notify(_ context.Context, entry crawler.ResultEntry) error {
	data, err := notify.NewMessage(n.crawl, n.runID, entry, time.Now()).Marshal()
	if err != nil {
		return err
	}
	_, _, err = n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(entry.ID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("crawl"), Value: []byte(n.crawl)},
		},
	})
	if err != nil {
		return fmt.Errorf("send kafka message: %w", err)
	}
	return nil
}

// Close shuts down the producer.
func (n *Notifier) Close() error {
	if err := n.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
