package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zero-day-ai/contextgraph/export"
	"github.com/zero-day-ai/contextgraph/persist"
)

// Client moves graph documents, notes and change events through Redis.
type Client interface {
	// PushDocument appends a snapshot to a queue (LPUSH).
	PushDocument(ctx context.Context, queue, name string, doc *persist.Document) error

	// PopDocument removes the oldest snapshot from a queue (BRPOP).
	// Blocks until a message is available, the timeout passes or the
	// context is cancelled. A zero timeout blocks indefinitely. Returns
	// nil, nil on timeout.
	PopDocument(ctx context.Context, queue string, timeout time.Duration) (*DocumentMessage, error)

	// PushNotes appends notes to a queue in one round trip.
	PushNotes(ctx context.Context, queue, source string, notes []export.Note) error

	// PopNote removes the oldest note from a queue. Same blocking rules
	// as PopDocument.
	PopNote(ctx context.Context, queue string, timeout time.Duration) (*NoteMessage, error)

	// Len returns the number of messages waiting in a queue.
	Len(ctx context.Context, queue string) (int64, error)

	// Publish sends an event to a pub/sub channel.
	Publish(ctx context.Context, channel string, ev Event) error

	// Subscribe returns a channel receiving events until ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan Event, error)

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	TLS *tls.Config

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Logger receives decode failures on subscriptions. Defaults to discard.
	Logger *slog.Logger
}

// RedisClient implements Client using go-redis/v9.
type RedisClient struct {
	client *redis.Client
	logger *slog.Logger
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.TLS != nil {
		redisOpts.TLSConfig = opts.TLS
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client, logger: opts.Logger}, nil
}

// PushDocument appends a snapshot to a queue.
func (c *RedisClient) PushDocument(ctx context.Context, queue, name string, doc *persist.Document) error {
	msg := DocumentMessage{Name: name, Document: doc, SubmittedAt: time.Now().UnixMilli()}
	if err := msg.IsValid(); err != nil {
		return fmt.Errorf("invalid document message: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal document message: %w", err)
	}
	if err := c.client.LPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}
	return nil
}

// PopDocument removes the oldest snapshot from a queue.
func (c *RedisClient) PopDocument(ctx context.Context, queue string, timeout time.Duration) (*DocumentMessage, error) {
	payload, err := c.pop(ctx, queue, timeout)
	if err != nil || payload == nil {
		return nil, err
	}
	var msg DocumentMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document message: %w", err)
	}
	return &msg, nil
}

// PushNotes appends notes to a queue, oldest first.
func (c *RedisClient) PushNotes(ctx context.Context, queue, source string, notes []export.Note) error {
	if len(notes) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	values := make([]any, 0, len(notes))
	for _, n := range notes {
		msg := NoteMessage{Source: source, Note: n, SubmittedAt: now}
		if err := msg.IsValid(); err != nil {
			return fmt.Errorf("invalid note message: %w", err)
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal note %s: %w", n.ID, err)
		}
		values = append(values, data)
	}
	if err := c.client.LPush(ctx, queue, values...).Err(); err != nil {
		return fmt.Errorf("failed to push to queue %s: %w", queue, err)
	}
	return nil
}

// PopNote removes the oldest note from a queue.
func (c *RedisClient) PopNote(ctx context.Context, queue string, timeout time.Duration) (*NoteMessage, error) {
	payload, err := c.pop(ctx, queue, timeout)
	if err != nil || payload == nil {
		return nil, err
	}
	var msg NoteMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal note message: %w", err)
	}
	return &msg, nil
}

func (c *RedisClient) pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	// BRPOP returns [queue_name, value].
	result, err := c.client.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue %s: %w", queue, err)
	}
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP result length: %d", len(result))
	}
	return []byte(result[1]), nil
}

// Len returns the number of messages waiting in a queue.
func (c *RedisClient) Len(ctx context.Context, queue string) (int64, error) {
	n, err := c.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get length of queue %s: %w", queue, err)
	}
	return n, nil
}

// Publish sends an event to a pub/sub channel.
func (c *RedisClient) Publish(ctx context.Context, channel string, ev Event) error {
	if ev.At == 0 {
		ev.At = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a subscription to a pub/sub channel.
func (c *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan Event, error) {
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					c.logger.Warn("dropping malformed event", "channel", channel, "error", err)
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
