package placebot

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCooldown_StartsExpired(t *testing.T) {
	c := NewCooldown(10 * time.Second)
	if !c.Until().IsZero() {
		t.Fatalf("until=%v, want zero", c.Until())
	}
	if _, cooling := c.Remaining(time.Now()); cooling {
		t.Fatal("fresh cooldown must permit submissions")
	}
	if err := c.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestCooldown_RemainingAddsBuffer(t *testing.T) {
	c := NewCooldown(10 * time.Second)
	now := time.Unix(1_700_000_000, 0)
	c.Set(now.Add(5 * time.Minute))

	d, cooling := c.Remaining(now)
	if !cooling {
		t.Fatal("expected cooling")
	}
	if d != 5*time.Minute+10*time.Second {
		t.Fatalf("remaining=%s", d)
	}
	if _, cooling := c.Remaining(now.Add(5 * time.Minute)); cooling {
		t.Fatal("cooldown should be over exactly at the stored time")
	}
}

func TestCooldown_SetTruncatesToSeconds(t *testing.T) {
	c := NewCooldown(0)
	c.Set(time.Unix(1_648_890_585, 999_000_000))
	if got := c.Until(); got.Unix() != 1_648_890_585 || got.Nanosecond() != 0 {
		t.Fatalf("until=%v", got)
	}
}

func TestCooldown_NegativeBuffer(t *testing.T) {
	if b := NewCooldown(-time.Second).Buffer(); b != 0 {
		t.Fatalf("buffer=%s", b)
	}
}

func TestCooldown_WaitHonorsContext(t *testing.T) {
	c := NewCooldown(0)
	c.Set(time.Now().Add(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func TestUnixMillisToTime(t *testing.T) {
	cases := []struct {
		ms   float64
		want int64
	}{
		{1_648_890_585_000, 1_648_890_585},
		{1.648890585e+12, 1_648_890_585},
		{1_700_000_000_999, 1_700_000_000},
	}
	for _, tc := range cases {
		if got := unixMillisToTime(tc.ms).Unix(); got != tc.want {
			t.Errorf("unixMillisToTime(%v)=%d, want %d", tc.ms, got, tc.want)
		}
	}
}
