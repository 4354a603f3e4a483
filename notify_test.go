package placebot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func samplePlaced() PlacedPixel {
	return PlacedPixel{
		X: 3, Y: 4, ColorIndex: 12,
		PlacedAt:      time.Unix(1_700_000_000, 0).UTC(),
		NextAvailable: time.Unix(1_700_000_300, 0).UTC(),
		Remaining:     9,
	}
}

func TestRedisNotifier_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := newRedisNotifier(pub, "")
	if err := n.PixelPlaced(context.Background(), samplePlaced()); err != nil {
		t.Fatalf("PixelPlaced: %v", err)
	}
	if pub.channel != DefaultRedisChannel {
		t.Fatalf("channel=%s", pub.channel)
	}
	var got PlacedPixel
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.X != 3 || got.Y != 4 || got.Remaining != 9 || !got.NextAvailable.Equal(samplePlaced().NextAvailable) {
		t.Fatalf("payload=%+v", got)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close on a fake publisher: %v", err)
	}
}

func TestRedisNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	n := newRedisNotifier(pub, "custom")
	err := n.PixelPlaced(context.Background(), samplePlaced())
	if err == nil || !strings.Contains(err.Error(), "custom") {
		t.Fatalf("want publish error naming the channel, got %v", err)
	}
}

func TestNewRedisNotifier_Lazy(t *testing.T) {
	n := NewRedisNotifier("127.0.0.1:0", "", 0, "")
	if n.channel != DefaultRedisChannel {
		t.Fatalf("channel=%s", n.channel)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNotifiers_FanOut(t *testing.T) {
	var calls int
	ok := NotifierFunc(func(context.Context, PlacedPixel) error { calls++; return nil })
	boom := errors.New("boom")
	bad := NotifierFunc(func(context.Context, PlacedPixel) error { calls++; return boom })

	err := Notifiers{ok, nil, bad, ok}.PixelPlaced(context.Background(), samplePlaced())
	if !errors.Is(err, boom) {
		t.Fatalf("want joined boom, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
	if err := (Notifiers{ok}).PixelPlaced(context.Background(), samplePlaced()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := (LogNotifier{}).PixelPlaced(context.Background(), samplePlaced()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "colored tile") || !strings.Contains(out, "x=3") || !strings.Contains(out, "y=4") {
		t.Fatalf("log output: %s", out)
	}
}
