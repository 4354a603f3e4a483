package placebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// PlacedPixel describes a pixel the server accepted.
type PlacedPixel struct {
	X             int       `json:"x"`
	Y             int       `json:"y"`
	ColorIndex    int       `json:"colorIndex"`
	CanvasIndex   int       `json:"canvasIndex"`
	PlacedAt      time.Time `json:"placedAt"`
	NextAvailable time.Time `json:"nextAvailable"`
	Remaining     int       `json:"remaining"`
}

// Notifier is told about every accepted pixel.
type Notifier interface {
	PixelPlaced(ctx context.Context, p PlacedPixel) error
}

// NotifierFunc adapts a function into a Notifier.
type NotifierFunc func(ctx context.Context, p PlacedPixel) error

// PixelPlaced calls f.
func (f NotifierFunc) PixelPlaced(ctx context.Context, p PlacedPixel) error {
	if f == nil {
		return nil
	}
	return f(ctx, p)
}

// LogNotifier logs placed pixels at info level.
type LogNotifier struct{}

// PixelPlaced implements Notifier.
func (LogNotifier) PixelPlaced(_ context.Context, p PlacedPixel) error {
	Logger().Info("colored tile",
		"x", p.X, "y", p.Y, "color", p.ColorIndex,
		"next", p.NextAvailable.Format(time.RFC3339), "remaining", p.Remaining)
	return nil
}

// Notifiers fans a notification out to every member and joins their errors.
type Notifiers []Notifier

// PixelPlaced implements Notifier.
func (ns Notifiers) PixelPlaced(ctx context.Context, p PlacedPixel) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.PixelPlaced(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publisher is the subset of *redis.Client used by RedisNotifier.
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes each placed pixel as JSON on a Redis pub/sub channel.
type RedisNotifier struct {
	client  publisher
	channel string
}

// DefaultRedisChannel is the pub/sub channel used when none is given.
const DefaultRedisChannel = "placebot:pixels"

// NewRedisNotifier connects to the Redis server at addr. The connection is lazy;
// errors surface on the first publish.
func NewRedisNotifier(addr, password string, db int, channel string) *RedisNotifier {
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return newRedisNotifier(rc, channel)
}

func newRedisNotifier(p publisher, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisNotifier{client: p, channel: channel}
}

// PixelPlaced implements Notifier.
func (n *RedisNotifier) PixelPlaced(ctx context.Context, p PlacedPixel) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("placebot: encode notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("placebot: publish to %s: %w", n.channel, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (n *RedisNotifier) Close() error {
	if c, ok := n.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
