// Package kafkapublisher publishes invalidation events to Kafka without
// blocking the write path.
package kafkapublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/listing-search/internal/core/observability"
	"github.com/mohammed-shakir/listing-search/internal/invalidation"
	"github.com/mohammed-shakir/listing-search/internal/logger"
)

type Publisher struct {
	topic   string
	source  string
	seq     atomic.Uint64
	events  chan invalidation.Event
	prod    sarama.AsyncProducer
	log     *slog.Logger
	stopped chan struct{}
	errDone chan struct{}
}

func New(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkapublisher: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, queueSize, log), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	host, _ := os.Hostname()
	p := &Publisher{
		topic:   topic,
		source:  host + "-" + logger.NewID(),
		events:  make(chan invalidation.Event, queueSize),
		prod:    prod,
		log:     log,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("kafkapublisher: marshal error", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Collection),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				observability.IncKafkaConsumerError("produce")
				p.log.Error("kafkapublisher: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish stamps the event with this process's source and next sequence
// number and queues it. A full queue drops the event; the cache TTL bounds
// the resulting staleness.
func (p *Publisher) Publish(ctx context.Context, ev invalidation.Event) {
	ev.Source = p.source
	ev.Seq = p.seq.Add(1)
	select {
	case p.events <- ev:
	default:
		observability.IncKafkaConsumerError("publish_dropped")
		p.log.WarnContext(ctx, "kafkapublisher: queue full, event dropped",
			"collection", ev.Collection, "seq", ev.Seq)
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafkapublisher: close producer: %w", err)
	}
	<-p.errDone
	return nil
}
