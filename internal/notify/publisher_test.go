package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
)

func TestLogPublisher_WritesStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json", Output: &buf})

	err := NewLogPublisher(logger).Publish(context.Background(), Event{
		Type:     EventDocumentFailed,
		BatchID:  "b-1",
		Identity: "acme",
		Error:    "corrupt",
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "document_failed", entry["event"])
	assert.Equal(t, "acme", entry["team_name"])
	assert.Equal(t, "corrupt", entry["error"])
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	var seen []EventType
	record := PublisherFunc(func(_ context.Context, e Event) error {
		seen = append(seen, e.Type)
		return nil
	})
	broken := PublisherFunc(func(context.Context, Event) error { return errors.New("down") })

	err := Multi{record, nil, broken, record}.Publish(context.Background(), Event{Type: EventBatchStarted})

	assert.EqualError(t, err, "down")
	assert.Equal(t, []EventType{EventBatchStarted, EventBatchStarted}, seen)
}

func TestEvent_JSON(t *testing.T) {
	data, err := json.Marshal(Event{
		Type:      EventDocumentCompleted,
		BatchID:   "b-1",
		Identity:  "acme",
		Score:     &domain.FinalScoreCard{TeamName: "acme", UniquenessScore: 12},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "document_completed", decoded["type"])
	assert.Equal(t, "acme", decoded["team_name"])
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, float64(12), decoded["score"].(map[string]any)["uniqueness_score"])
}

func TestNewRedisPublisherWithClient_Channel(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	assert.Equal(t, "deck:evaluations", NewRedisPublisherWithClient(client, "", "").Channel())
	assert.Equal(t, "x:y", NewRedisPublisherWithClient(client, "y", "x:").Channel())
}

// Requires a reachable Redis, e.g. REDIS_URL=redis://localhost:6379/0.
func TestRedisPublisher_Publish(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	pub, err := NewRedisPublisher(RedisConfig{Addr: opts.Addr, Password: opts.Password, DB: opts.DB, Channel: "evaluations-test"})
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := redis.NewClient(opts).Subscribe(ctx, pub.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, Event{Type: EventBatchCompleted, BatchID: "b-9", Total: 3, Succeeded: 2, Failed: 1}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, EventBatchCompleted, got.Type)
	assert.Equal(t, 2, got.Succeeded)
}
