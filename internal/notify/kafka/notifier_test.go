package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

func TestNotifySendsKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "v1" {
			return errors.New("unexpected key " + string(key))
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var payload map[string]any
		if err := json.Unmarshal(value, &payload); err != nil {
			return err
		}
		if payload["crawl"] != "arabic" {
			return errors.New("missing crawl")
		}
		return nil
	})

	n, err := NewWithProducer(producer, Config{Topic: "results", Crawl: "arabic"})
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), crawler.ResultEntry{ID: "v1"}))
	require.NoError(t, n.Close())
}

func TestNotifyReturnsProducerError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	n, err := NewWithProducer(producer, Config{Topic: "results"})
	require.NoError(t, err)
	err = n.Notify(context.Background(), crawler.ResultEntry{ID: "v1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, n.Close())
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	_, err = NewWithProducer(nil, Config{Topic: "t"})
	require.Error(t, err)
	_, err = NewWithProducer(mocks.NewSyncProducer(t, nil), Config{})
	require.Error(t, err)
}
