package placebot

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	// ErrTokenMissing indicates the bearer token is empty.
	ErrTokenMissing = errors.New("placebot: bearer token is required")
	// ErrImageLoad wraps every failure to open or decode the target image.
	ErrImageLoad = errors.New("placebot: load target image")
	// ErrCredentialExpired indicates the realtime endpoint rejected the token.
	// The token has to be refreshed out-of-band before running again.
	ErrCredentialExpired = errors.New("placebot: credential expired or rejected")
	// ErrFetchTimeout indicates no full-frame message arrived before the fetch deadline.
	ErrFetchTimeout = errors.New("placebot: timed out waiting for canvas snapshot")
	// ErrNoDifference indicates every target pixel already has the fill color.
	ErrNoDifference = errors.New("placebot: canvas already matches target")
	// ErrProtocol is wrapped by ProtocolError.
	ErrProtocol = errors.New("placebot: unrecognized response")
	// ErrTargetEmpty indicates the target image has no non-background pixel.
	ErrTargetEmpty = errors.New("placebot: target has no pixels to place")
)

// APIError captures non-2xx responses from the mutation endpoint or the bitmap host.
type APIError struct {
	StatusCode int
	// Code is the server error code when the body carried one.
	Code string
	// Message is a human-readable message from the server or synthesized from body.
	Message string
	// RawBody keeps the original payload for debugging.
	RawBody []byte
}

func (e *APIError) Error() string {
	b := strings.Builder{}
	b.WriteString("placebot: API error (status=")
	b.WriteString(strconv.Itoa(e.StatusCode))
	if e.Code != "" {
		b.WriteString(", code=")
		b.WriteString(e.Code)
	}
	b.WriteString(")")
	if m := strings.TrimSpace(e.Message); m != "" {
		b.WriteString(": ")
		b.WriteString(m)
	}
	return b.String()
}

// ProtocolError reports a mutation response that is neither an accepted placement
// nor a cooldown rejection.
type ProtocolError struct {
	// Message is the first GraphQL error message, if any.
	Message string
	// RawBody keeps the original payload for debugging.
	RawBody []byte
}

func (e *ProtocolError) Error() string {
	if m := strings.TrimSpace(e.Message); m != "" {
		return ErrProtocol.Error() + ": " + m
	}
	return ErrProtocol.Error()
}

// Unwrap lets errors.Is match ErrProtocol.
func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// IsRateLimitError returns true if err is an APIError with HTTP status 429 (Too Many Requests).
func IsRateLimitError(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode == 429
	}
	return false
}

// IsAuthError returns true if err means the token is no longer accepted:
// ErrCredentialExpired or an APIError with HTTP status 401 or 403.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrCredentialExpired) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode == 401 || ae.StatusCode == 403
	}
	return false
}

// IsTransient returns true for failures worth retrying on the next cycle:
// fetch timeouts, network errors, refused websocket handshakes, 429 and 5xx responses.
func IsTransient(err error) bool {
	if err == nil || IsAuthError(err) || errors.Is(err, ErrProtocol) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrFetchTimeout) || errors.Is(err, websocket.ErrBadHandshake) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode == 429 || ae.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// errorBody covers the JSON error shapes of the mutation endpoint and the bitmap
// host: a flat message/error/code object or a GraphQL errors list.
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
	Code    json.RawMessage `json:"code"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func buildAPIError(status int, body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	ae := &APIError{StatusCode: status, RawBody: body, Message: trimmed}
	if !strings.HasPrefix(trimmed, "{") {
		return ae
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ae
	}
	switch {
	case eb.Message != "":
		ae.Message = eb.Message
	case rawString(eb.Error) != "":
		ae.Message = rawString(eb.Error)
	case len(eb.Errors) > 0 && eb.Errors[0].Message != "":
		ae.Message = eb.Errors[0].Message
	}
	ae.Code = rawString(eb.Code)
	return ae
}

// rawString renders a JSON string or number; anything else yields "".
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.FormatInt(int64(n), 10)
	}
	return ""
}
