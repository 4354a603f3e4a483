package placebot

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// sleepContext blocks for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// unixMillisToTime converts a server timestamp in milliseconds to whole seconds.
// The remainder is truncated so the result shares the unit of the Unix-seconds clock.
func unixMillisToTime(ms float64) time.Time {
	return time.Unix(int64(ms)/1000, 0)
}

// LoadToken reads the bearer token from a single-line text file.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("placebot: read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if i := strings.IndexAny(token, "\r\n"); i >= 0 {
		token = strings.TrimSpace(token[:i])
	}
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return "", ErrTokenMissing
	}
	return token, nil
}
