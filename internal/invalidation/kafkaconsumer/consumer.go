// Package kafkaconsumer applies listing invalidation events read from a
// Kafka consumer group to the local result cache.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	obs "github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/invalidation"
)

type Applier interface {
	Apply(ctx context.Context, ev invalidation.Event) error
}

type Consumer struct {
	cfg     Config
	logger  *slog.Logger
	applier Applier
	dedupe  *seqDedupe
}

func New(cfg Config, logger *slog.Logger, a Applier) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		logger:  logger.With("component", "kafka_consumer"),
		applier: a,
		dedupe:  newSeqDedupe(cfg.DedupeSize),
	}
}

// Start joins the consumer group and blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.applier == nil {
		return errors.New("kafkaconsumer: missing applier")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				obs.IncKafkaConsumerError("consume")
				c.logger.Error("consumer error", "err", err, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne applies a single message. Undecodable or invalid events are
// logged and skipped so a poison message cannot stall the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logger.ErrorContext(ctx, "kafka error", "kind", "decode",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncKafkaConsumerError("validate")
		c.logger.ErrorContext(ctx, "kafka error", "kind", "validate",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if c.dedupe.seen(ev.Source, ev.Seq) {
		c.logger.DebugContext(ctx, "duplicate invalidation skipped", "source", ev.Source, "seq", ev.Seq)
		return nil
	}

	if err := c.applier.Apply(ctx, ev); err != nil {
		obs.IncKafkaConsumerError("apply")
		return fmt.Errorf("apply: %w", err)
	}
	c.dedupe.record(ev.Source, ev.Seq)
	return nil
}
