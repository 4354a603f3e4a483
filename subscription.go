package placebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	subscribeQuery = "subscription replace($input: SubscribeInput!) {\n  subscribe(input: $input) {\n    id\n    ... on BasicMessage {\n      data {\n        __typename\n        ... on FullFrameMessageData {\n          __typename\n          name\n          timestamp\n        }\n        ... on DiffFrameMessageData {\n          __typename\n          name\n          currentTimestamp\n          previousTimestamp\n        }\n      }\n      __typename\n    }\n    __typename\n  }\n}\n"

	fullFrameTypename = "FullFrameMessageData"
	canvasCategory    = "CANVAS"
)

// realtime message types (graphql-ws protocol).
const (
	msgConnectionInit  = "connection_init"
	msgConnectionError = "connection_error"
	msgStart           = "start"
	msgData            = "data"
)

type realtimeMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type subscribePayload struct {
	Variables struct {
		Input struct {
			Channel struct {
				TeamOwner string `json:"teamOwner"`
				Category  string `json:"category"`
				Tag       string `json:"tag"`
			} `json:"channel"`
		} `json:"input"`
	} `json:"variables"`
	Extensions    struct{} `json:"extensions"`
	OperationName string   `json:"operationName"`
	Query         string   `json:"query"`
}

type framePayload struct {
	Data struct {
		Subscribe struct {
			Data struct {
				Typename string `json:"__typename"`
				Name     string `json:"name"`
			} `json:"data"`
		} `json:"subscribe"`
	} `json:"data"`
}

// CanvasFetcher returns the current canvas state.
type CanvasFetcher interface {
	FetchCanvas(ctx context.Context) (*CanvasGrid, error)
}

// FetchCanvas opens the realtime endpoint, subscribes to the canvas channel and waits
// for a full-frame message, then downloads and decodes the bitmap it names. Every
// other message is ignored. The connection is closed before returning.
//
// A rejected token (failed read, connection_error, 401/403 handshake) returns
// ErrCredentialExpired; no full frame within the fetch timeout returns ErrFetchTimeout.
func (c *Client) FetchCanvas(ctx context.Context) (*CanvasGrid, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(c.fetchTimeout)

	conn, err := c.dial(ctx, deadline)
	if err != nil {
		return nil, err
	}
	url, err := c.awaitFullFrame(ctx, conn, deadline)
	closeRealtime(conn)
	if err != nil {
		return nil, err
	}

	Logger().Debug("full frame received", "url", url)
	grid, err := c.download(ctx, url)
	if err != nil {
		return nil, err
	}
	Logger().Info("fetched the canvas", "width", grid.Width, "height", grid.Height)
	return grid, nil
}

func (c *Client) dial(ctx context.Context, deadline time.Time) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: time.Until(deadline),
	}
	header := http.Header{}
	if c.origin != "" {
		header.Set("Origin", c.origin)
	}
	if c.userAgent != "" {
		header.Set("User-Agent", c.userAgent)
	}

	conn, resp, err := dialer.DialContext(ctx, c.realtimeURL, header)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", ErrCredentialExpired, resp.StatusCode)
		}
		return nil, fmt.Errorf("placebot: dial realtime endpoint: %w", err)
	}
	return conn, nil
}

func (c *Client) awaitFullFrame(ctx context.Context, conn *websocket.Conn, deadline time.Time) (string, error) {
	// Unblock ReadMessage when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return "", fmt.Errorf("placebot: set write deadline: %w", err)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return "", fmt.Errorf("placebot: set read deadline: %w", err)
	}

	initPayload, err := json.Marshal(map[string]string{"Authorization": "Bearer " + c.token})
	if err != nil {
		return "", fmt.Errorf("placebot: encode connection init: %w", err)
	}
	if err := conn.WriteJSON(realtimeMessage{Type: msgConnectionInit, Payload: initPayload}); err != nil {
		return "", c.classifyReadError(ctx, err)
	}

	var sub subscribePayload
	sub.Variables.Input.Channel.TeamOwner = c.teamOwner
	sub.Variables.Input.Channel.Category = canvasCategory
	sub.Variables.Input.Channel.Tag = strconv.Itoa(c.canvasIndex)
	sub.OperationName = "replace"
	sub.Query = subscribeQuery
	subPayload, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("placebot: encode subscription: %w", err)
	}
	opID := strconv.FormatUint(uint64(c.opIDs.Next()), 10)
	if err := conn.WriteJSON(realtimeMessage{ID: opID, Type: msgStart, Payload: subPayload}); err != nil {
		return "", c.classifyReadError(ctx, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", c.classifyReadError(ctx, err)
		}
		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			Logger().Debug("ignoring malformed realtime message", "error", err)
			continue
		}
		switch msg.Type {
		case msgConnectionError:
			return "", fmt.Errorf("%w: %s", ErrCredentialExpired, string(msg.Payload))
		case msgData:
			var frame framePayload
			if err := json.Unmarshal(msg.Payload, &frame); err != nil {
				Logger().Debug("ignoring malformed frame", "error", err)
				continue
			}
			d := frame.Data.Subscribe.Data
			if d.Typename == fullFrameTypename && d.Name != "" {
				return d.Name, nil
			}
			Logger().Debug("ignoring frame", "typename", d.Typename)
		default:
			Logger().Debug("ignoring realtime message", "type", msg.Type)
		}
	}
}

// classifyReadError maps connection failures onto the fetch error kinds.
func (c *Client) classifyReadError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w after %s", ErrFetchTimeout, c.fetchTimeout)
	}
	return fmt.Errorf("%w: %v", ErrCredentialExpired, err)
}

func closeRealtime(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}
