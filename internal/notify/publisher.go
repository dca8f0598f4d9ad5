// Package notify publishes batch lifecycle events.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
)

// EventType names a batch lifecycle transition.
type EventType string

const (
	EventBatchStarted      EventType = "batch_started"
	EventDocumentStarted   EventType = "document_started"
	EventDocumentCompleted EventType = "document_completed"
	EventDocumentFailed    EventType = "document_failed"
	EventBatchCompleted    EventType = "batch_completed"
)

// Event is one lifecycle notification. Document events carry Identity;
// batch events carry the counters.
type Event struct {
	Type      EventType              `json:"type"`
	BatchID   string                 `json:"batch_id"`
	Identity  string                 `json:"team_name,omitempty"`
	Score     *domain.FinalScoreCard `json:"score,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Total     int                    `json:"total,omitempty"`
	Succeeded int                    `json:"succeeded,omitempty"`
	Failed    int                    `json:"failed,omitempty"`
	Duration  time.Duration          `json:"duration_ns,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Publisher delivers events. Callers treat errors as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *observability.Logger
}

// NewLogPublisher creates a publisher backed by logger.
func NewLogPublisher(logger *observability.Logger) *LogPublisher {
	if logger == nil {
		logger = observability.Nop()
	}
	return &LogPublisher{logger: logger.WithOperation("notify")}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	var e *observability.LogEvent
	if event.Type == EventDocumentFailed {
		e = p.logger.Warn()
	} else {
		e = p.logger.Info()
	}

	e = e.Str("event", string(event.Type)).Str("batch_id", event.BatchID)
	if event.Identity != "" {
		e = e.Str("team_name", event.Identity)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	switch event.Type {
	case EventBatchStarted:
		e = e.Int("total", event.Total)
	case EventBatchCompleted:
		e = e.Int("total", event.Total).Int("succeeded", event.Succeeded).Int("failed", event.Failed)
	}
	if event.Duration > 0 {
		e = e.Dur("duration", event.Duration)
	}
	e.Msg("Batch event")
	return nil
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Prefix   string
}

// RedisPublisher publishes events as JSON on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisPublisherWithClient(client, cfg.Channel, cfg.Prefix), nil
}

// NewRedisPublisherWithClient wraps an existing client. The full channel
// name is prefix+channel.
func NewRedisPublisherWithClient(client *redis.Client, channel, prefix string) *RedisPublisher {
	if channel == "" {
		channel = "evaluations"
	}
	if prefix == "" {
		prefix = "deck:"
	}
	return &RedisPublisher{client: client, channel: prefix + channel}
}

// Channel returns the full channel name events are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
