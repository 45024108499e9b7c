// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package pubsub

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/cardinalhq/tenantconf/config"
)

// KafkaBackend broadcasts over a Kafka topic. Every process reads the
// topic with its own consumer group so each sees every message.
type KafkaBackend struct {
	dispatcher
	writer *kafka.Writer
	reader *kafka.Reader
}

var _ Backend = (*KafkaBackend)(nil)

func NewKafkaBackend(cfg config.KafkaConfig, instanceID string, stats *StatsAggregator) (*KafkaBackend, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka broadcast backend requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka broadcast backend requires a topic")
	}

	var mechanism sasl.Mechanism
	if cfg.SASLEnabled {
		m, err := createSASLMechanism(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create SASL mechanism: %w", err)
		}
		mechanism = m
	}
	var tlsConfig *tls.Config
	if cfg.TLSEnabled {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Transport: &kafka.Transport{
			SASL:        mechanism,
			TLS:         tlsConfig,
			DialTimeout: cfg.ConnectionTimeout,
		},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     consumerGroup(cfg.ConsumerGroupPrefix, instanceID),
		StartOffset: kafka.LastOffset,
		MaxWait:     500 * time.Millisecond,
		Dialer: &kafka.Dialer{
			Timeout:       cfg.ConnectionTimeout,
			DualStack:     true,
			SASLMechanism: mechanism,
			TLS:           tlsConfig,
		},
	})

	return &KafkaBackend{
		dispatcher: dispatcher{name: string(BackendTypeKafka), stats: stats},
		writer:     writer,
		reader:     reader,
	}, nil
}

func consumerGroup(prefix, instanceID string) string {
	if prefix == "" {
		prefix = "tenantconf"
	}
	return prefix + ".invalidations." + instanceID
}

func createSASLMechanism(cfg config.KafkaConfig) (sasl.Mechanism, error) {
	switch cfg.SASLMechanism {
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	case "PLAIN":
		return plain.Mechanism{
			Username: cfg.SASLUsername,
			Password: cfg.SASLPassword,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.SASLMechanism)
	}
}

func (b *KafkaBackend) Publish(ctx context.Context, inv Invalidation) error {
	payload, err := encodeInvalidation(inv)
	if err == nil {
		err = b.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(inv.Scope.String()),
			Value: payload,
		})
	}
	b.published(ctx, err)
	if err != nil {
		return fmt.Errorf("failed to write invalidation to %s: %w", b.writer.Topic, err)
	}
	return nil
}

func (b *KafkaBackend) Run(ctx context.Context) error {
	slog.Info("Starting kafka config invalidation consumer",
		slog.String("topic", b.reader.Config().Topic),
		slog.String("groupID", b.reader.Config().GroupID))

	for {
		msg, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				slog.Info("Shutting down kafka config invalidation consumer")
				return nil
			}
			slog.Error("Failed to read invalidation", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		b.dispatchPayload(ctx, msg.Value)
	}
}

func (b *KafkaBackend) Close() error {
	return errors.Join(b.reader.Close(), b.writer.Close())
}
