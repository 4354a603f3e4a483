// Package main runs the placebot agent: it paints a target image onto the shared
// canvas one pixel per cooldown period.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/1set/placebot"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	var err error
	switch os.Args[1] {
	case "run":
		err = runAgent(os.Args[2:])
	case "diff":
		err = runDiff(os.Args[2:])
	case "target":
		err = runTarget(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if errors.Is(err, placebot.ErrCredentialExpired) {
		fmt.Fprintf(os.Stderr, "placebot: the provided token has expired, update the token file then run again (%v)\n", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "placebot: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags shared by every subcommand that talks to the service.
type common struct {
	tokenFile   *string
	image       *string
	origin      *string
	canvas      *int
	color       *int
	baseURL     *string
	realtimeURL *string
	teamOwner   *string
	timeout     *time.Duration
	verbose     *bool
}

func addCommon(fs *flag.FlagSet) *common {
	return &common{
		tokenFile:   fs.String("token-file", envOr("PLACEBOT_TOKEN_FILE", "token.txt"), "File holding the bearer token; or set PLACEBOT_TOKEN_FILE"),
		image:       fs.String("image", envOr("PLACEBOT_IMAGE", "blue.png"), "Target image; or set PLACEBOT_IMAGE"),
		origin:      fs.String("origin", envOr("PLACEBOT_ORIGIN", "0,0"), "Canvas coordinate of the image's top-left pixel (x,y)"),
		canvas:      fs.Int("canvas", envInt("PLACEBOT_CANVAS", 0), "Canvas index"),
		color:       fs.Int("color", envInt("PLACEBOT_COLOR", placebot.DefaultColorIndex), "Fill color index"),
		baseURL:     fs.String("base-url", envOr("PLACEBOT_BASE_URL", placebot.DefaultBaseURL), "GraphQL host"),
		realtimeURL: fs.String("realtime-url", envOr("PLACEBOT_REALTIME_URL", placebot.DefaultRealtimeURL), "Realtime websocket endpoint"),
		teamOwner:   fs.String("team-owner", envOr("PLACEBOT_TEAM_OWNER", placebot.DefaultTeamOwner), "Owner of the canvas channel"),
		timeout:     fs.Duration("fetch-timeout", placebot.DefaultFetchTimeout, "Max wait for a canvas snapshot"),
		verbose:     fs.Bool("v", false, "Debug logging"),
	}
}

func (c *common) setup(extra ...placebot.ClientOption) (*placebot.Client, *placebot.Target, error) {
	level := slog.LevelInfo
	if *c.verbose {
		level = slog.LevelDebug
	}
	placebot.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	dx, dy, err := parseOrigin(*c.origin)
	if err != nil {
		return nil, nil, err
	}
	target, err := placebot.LoadTarget(*c.image)
	if err != nil {
		return nil, nil, err
	}
	target = target.Translate(dx, dy)

	token, err := placebot.LoadToken(*c.tokenFile)
	if err != nil {
		return nil, nil, err
	}
	opts := []placebot.ClientOption{
		placebot.WithBaseURL(*c.baseURL),
		placebot.WithRealtimeURL(*c.realtimeURL),
		placebot.WithTeamOwner(*c.teamOwner),
		placebot.WithCanvasIndex(*c.canvas),
		placebot.WithFetchTimeout(*c.timeout),
	}
	client, err := placebot.NewClient(token, append(opts, extra...)...)
	if err != nil {
		return nil, nil, err
	}
	return client, target, nil
}

func runAgent(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfg := addCommon(fs)
	buffer := fs.Duration("buffer", placebot.DefaultCooldownBuffer, "Safety buffer added to every cooldown wait")
	idle := fs.Duration("idle", 0, "Keep running once the canvas matches, re-checking at this interval (0 exits)")
	retries := fs.Int("retries", 3, "Consecutive transient failures tolerated before exiting")
	retryDelay := fs.Duration("retry-delay", 30*time.Second, "Delay before retrying after a transient failure")
	redisAddr := fs.String("redis-addr", os.Getenv("PLACEBOT_REDIS_ADDR"), "Publish placed pixels to this Redis server (optional)")
	redisPassword := fs.String("redis-password", os.Getenv("PLACEBOT_REDIS_PASSWORD"), "Redis password")
	redisDB := fs.Int("redis-db", 0, "Redis database")
	redisChannel := fs.String("redis-channel", placebot.DefaultRedisChannel, "Redis pub/sub channel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	// The client holds requests while the shared cooldown is running.
	cooldown := placebot.NewCooldown(*buffer)
	client, target, err := cfg.setup(placebot.WithRateLimiter(placebot.Limiters{
		placebot.NewIntervalLimiter(time.Second),
		cooldown,
	}))
	if err != nil {
		return err
	}

	notifiers := placebot.Notifiers{placebot.LogNotifier{}}
	if strings.TrimSpace(*redisAddr) != "" {
		rn := placebot.NewRedisNotifier(*redisAddr, *redisPassword, *redisDB, *redisChannel)
		defer rn.Close()
		notifiers = append(notifiers, rn)
	}

	sched, err := placebot.NewScheduler(client, client, target,
		placebot.WithColorIndex(*cfg.color),
		placebot.WithCooldown(cooldown),
		placebot.WithIdleInterval(*idle),
		placebot.WithRetry(*retries, *retryDelay),
		placebot.WithNotifier(notifiers),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sched.Run(ctx)
	st := sched.Stats()
	fmt.Printf("Stopped after %d cycles (placed=%d rejected=%d)\n", st.Cycles, st.Placed, st.Rejected)
	return err
}

func runDiff(args []string) error {
	fs := flag.NewFlagSet("diff", flag.ContinueOnError)
	cfg := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, target, err := cfg.setup()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grid, err := client.FetchCanvas(ctx)
	if err != nil {
		return err
	}
	n := placebot.CountDifferences(target.Points, grid, *cfg.color)
	p, err := placebot.FirstDifference(target.Points, grid, *cfg.color)
	if errors.Is(err, placebot.ErrNoDifference) {
		fmt.Printf("Canvas matches target (%d pixels)\n", target.Len())
		return nil
	}
	fmt.Printf("%d of %d pixels differ; next tile %s\n", n, target.Len(), p)
	return nil
}

func runTarget(args []string) error {
	fs := flag.NewFlagSet("target", flag.ContinueOnError)
	image := fs.String("image", envOr("PLACEBOT_IMAGE", "blue.png"), "Target image; or set PLACEBOT_IMAGE")
	origin := fs.String("origin", envOr("PLACEBOT_ORIGIN", "0,0"), "Canvas coordinate of the image's top-left pixel (x,y)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dx, dy, err := parseOrigin(*origin)
	if err != nil {
		return err
	}
	target, err := placebot.LoadTarget(*image)
	if err != nil {
		return err
	}
	target = target.Translate(dx, dy)
	fmt.Printf("%d pixels within %v\n", target.Len(), target.Bounds())
	return nil
}

func parseOrigin(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("-origin must be x,y, got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("-origin x: %w", err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("-origin y: %w", err)
	}
	return x, y, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `placebot - paint a target image onto the shared canvas

Usage:
  placebot run    [flags]
  placebot diff   [flags]
  placebot target [flags]

Common flags:
  -token-file    File holding the bearer token (or PLACEBOT_TOKEN_FILE; default token.txt)
  -image         Target image (or PLACEBOT_IMAGE; default blue.png)
  -origin        Canvas coordinate of the image's top-left pixel, x,y (default 0,0)
  -canvas        Canvas index (default 0)
  -color         Fill color index (default 12)
  -fetch-timeout Max wait for a canvas snapshot (default 1m)
  -v             Debug logging

Run flags:
  -buffer        Safety buffer added to every cooldown wait (default 10s)
  -idle          Re-check interval once the canvas matches (default 0: exit)
  -retries       Consecutive transient failures tolerated (default 3)
  -retry-delay   Delay before a retry (default 30s)
  -redis-addr    Publish placed pixels to Redis (optional)
  -redis-channel Redis pub/sub channel (default placebot:pixels)

Notes:
  - White (and fully transparent) image pixels are left alone.
  - Press Ctrl-C to stop; no further requests are made after an interrupt.
`)
}
