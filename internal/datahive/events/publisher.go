// Package events publishes one event per consolidated result of a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"recon/internal/datahive/models"
)

// Event is the message value. The record key is the result's cache key, so
// every update for a pair lands on the same partition.
type Event struct {
	RunID       string                    `json:"run_id"`
	Class       models.IdentifierClass    `json:"class"`
	PublishedAt time.Time                 `json:"published_at"`
	Result      models.ConsolidatedResult `json:"result"`
}

// Producer is the subset of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher writes events synchronously.
type KafkaPublisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a KafkaPublisher.
type Option func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

func NewKafkaPublisher(producer Producer, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *KafkaPublisher) Publish(ctx context.Context, summary *models.RunSummary) error {
	events := Build(summary, p.now().UTC())
	if len(events) == 0 {
		return nil
	}
	records := make([]*kgo.Record, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", ev.Result.CacheKey, err)
		}
		records = append(records, &kgo.Record{
			Topic: p.topic,
			Key:   []byte(ev.Result.CacheKey),
			Value: value,
			Headers: []kgo.RecordHeader{
				{Key: "run_id", Value: []byte(summary.RunID)},
				{Key: "class", Value: []byte(summary.Class)},
			},
		})
	}
	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("publishing run %s: %w", summary.RunID, err)
	}
	p.logger.DebugContext(ctx, "run results published",
		"run_id", summary.RunID,
		"topic", p.topic,
		"events", len(records),
	)
	return nil
}

// Build returns the events of summary in result order.
func Build(summary *models.RunSummary, at time.Time) []Event {
	if summary == nil {
		return nil
	}
	out := make([]Event, len(summary.Results))
	for i, r := range summary.Results {
		out[i] = Event{
			RunID:       summary.RunID,
			Class:       summary.Class,
			PublishedAt: at,
			Result:      r,
		}
	}
	return out
}

// MemoryPublisher keeps events in process. Used when no brokers are
// configured and in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, summary *models.RunSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, Build(summary, time.Now().UTC())...)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}
