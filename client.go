package placebot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	incremental "github.com/GeertJohan/go.incremental"
)

const (
	// DefaultBaseURL is the GraphQL host. The mutation endpoint is under /query.
	DefaultBaseURL = "https://gql-realtime-2.reddit.com"
	// DefaultRealtimeURL is the websocket endpoint that streams canvas frames.
	DefaultRealtimeURL = "wss://gql-realtime-2.reddit.com/query"
	// DefaultOrigin is sent on the websocket handshake.
	DefaultOrigin = "https://hot-potato.reddit.com"
	// DefaultTeamOwner is the owner of the canvas channel subscribed to.
	DefaultTeamOwner = "AFD2022"
	// DefaultFetchTimeout bounds the wait for a full-frame message.
	DefaultFetchTimeout = 60 * time.Second

	queryEndpoint       = "/query"
	userAgentProduct    = "placebot"
	userAgentVersion    = "1.0"
	defaultHTTPTimeout  = 30 * time.Second
	maxResponseBodySize = 4 << 20  // 4 MiB guard for JSON replies
	maxBitmapSize       = 64 << 20 // 64 MiB guard for canvas bitmaps
)

// Client talks to the canvas service: it fetches snapshots over the realtime endpoint
// and submits pixels through the GraphQL mutation endpoint.
type Client struct {
	baseURL      string
	realtimeURL  string
	origin       string
	token        string
	http         *http.Client
	limiter      RateLimiter
	userAgent    string
	teamOwner    string
	canvasIndex  int
	palette      Palette
	fetchTimeout time.Duration

	opIDs incremental.Uint
}

// ClientOption mutates the client during construction.
type ClientOption func(*Client)

// NewClient builds a client. token is the bearer token without the "Bearer " prefix.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMissing
	}
	c := &Client{
		baseURL:      DefaultBaseURL,
		realtimeURL:  DefaultRealtimeURL,
		origin:       DefaultOrigin,
		token:        token,
		userAgent:    buildDefaultUserAgent(),
		http:         &http.Client{Timeout: defaultHTTPTimeout},
		limiter:      NewIntervalLimiter(time.Second),
		teamOwner:    DefaultTeamOwner,
		palette:      PlacePalette,
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = DefaultFetchTimeout
	}
	if len(c.palette) == 0 {
		c.palette = PlacePalette
	}
	c.baseURL = sanitizeURL(c.baseURL, DefaultBaseURL)
	c.realtimeURL = sanitizeURL(c.realtimeURL, DefaultRealtimeURL)
	return c, nil
}

// WithBaseURL overrides the GraphQL host (useful for tests). No trailing slash required.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithRealtimeURL overrides the websocket endpoint.
func WithRealtimeURL(u string) ClientOption {
	return func(c *Client) { c.realtimeURL = u }
}

// WithOrigin sets the Origin header of the websocket handshake. Empty omits it.
func WithOrigin(origin string) ClientOption {
	return func(c *Client) { c.origin = origin }
}

// WithHTTPClient installs a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimiter replaces the request pacer. Pass nil to disable it.
func WithRateLimiter(l RateLimiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent sets a custom User-Agent string.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithTeamOwner sets the owner of the canvas channel.
func WithTeamOwner(owner string) ClientOption {
	return func(c *Client) { c.teamOwner = owner }
}

// WithCanvasIndex selects the canvas (also used as the channel tag).
func WithCanvasIndex(idx int) ClientOption {
	return func(c *Client) { c.canvasIndex = idx }
}

// WithPalette sets the palette used to map true-color snapshots to indices.
func WithPalette(p Palette) ClientOption {
	return func(c *Client) { c.palette = p }
}

// WithFetchTimeout bounds how long FetchCanvas waits for a full frame.
func WithFetchTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.fetchTimeout = d }
}

// CanvasIndex returns the canvas this client targets.
func (c *Client) CanvasIndex() int { return c.canvasIndex }

func sanitizeURL(u, fallback string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return fallback
	}
	return strings.TrimRight(u, "/")
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) setCommonHeaders(h http.Header) {
	h.Set("Authorization", "Bearer "+c.token)
	if ua := strings.TrimSpace(c.userAgent); ua != "" {
		h.Set("User-Agent", ua)
	}
}

// postJSON encodes the payload, executes the POST, and returns the raw 2xx body.
func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("placebot: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("placebot: build request: %w", err)
	}
	c.setCommonHeaders(req.Header)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("placebot: execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("placebot: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, buildAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

// download fetches a canvas bitmap and decodes it into a grid.
func (c *Client) download(ctx context.Context, url string) (*CanvasGrid, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("placebot: build request: %w", err)
	}
	if ua := strings.TrimSpace(c.userAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("placebot: download canvas: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
		return nil, buildAPIError(resp.StatusCode, raw)
	}
	return DecodeCanvas(io.LimitReader(resp.Body, maxBitmapSize), c.palette)
}

func buildDefaultUserAgent() string {
	goVer := strings.TrimPrefix(runtime.Version(), "go")
	if goVer == "" {
		goVer = runtime.Version()
	}
	return fmt.Sprintf("%s/%s (+https://github.com/1set/placebot; Go%s; %s/%s)",
		userAgentProduct, userAgentVersion, goVer, runtime.GOOS, runtime.GOARCH)
}
