package placebot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	setPixelAction = "r/replace:set_pixel"
	setPixelQuery  = "mutation setPixel($input: ActInput!) {\n  act(input: $input) {\n    data {\n      ... on BasicMessage {\n        id\n        data {\n          ... on GetUserCooldownResponseMessageData {\n            nextAvailablePixelTimestamp\n            __typename\n          }\n          ... on SetPixelResponseMessageData {\n            timestamp\n            __typename\n          }\n          __typename\n        }\n        __typename\n      }\n      __typename\n    }\n    __typename\n  }\n}\n"
)

// Outcome classifies a parsed mutation response.
type Outcome int

const (
	// OutcomeAccepted means the pixel was placed.
	OutcomeAccepted Outcome = iota + 1
	// OutcomeStillOnCooldown means the server refused because the account is cooling down.
	OutcomeStillOnCooldown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeStillOnCooldown:
		return "still-on-cooldown"
	default:
		return "unknown"
	}
}

// SubmitResult is the outcome of one pixel submission. Both outcomes carry the
// next time a pixel may be submitted, in whole seconds.
type SubmitResult struct {
	Outcome       Outcome
	Pixel         Point
	ColorIndex    int
	NextAvailable time.Time
}

// setPixelRequest matches the setPixel GraphQL mutation payload.
type setPixelRequest struct {
	OperationName string `json:"operationName"`
	Variables     struct {
		Input struct {
			ActionName       string           `json:"actionName"`
			PixelMessageData pixelMessageData `json:"PixelMessageData"`
		} `json:"input"`
	} `json:"variables"`
	Query string `json:"query"`
}

type pixelMessageData struct {
	Coordinate  Point `json:"coordinate"`
	ColorIndex  int   `json:"colorIndex"`
	CanvasIndex int   `json:"canvasIndex"`
}

type setPixelResponse struct {
	Data *struct {
		Act *struct {
			Data []struct {
				Data *struct {
					NextAvailablePixelTimestamp *float64 `json:"nextAvailablePixelTimestamp"`
				} `json:"data"`
			} `json:"data"`
		} `json:"act"`
	} `json:"data"`
	Errors []struct {
		Message    string `json:"message"`
		Extensions *struct {
			NextAvailablePixelTs *float64 `json:"nextAvailablePixelTs"`
		} `json:"extensions"`
	} `json:"errors"`
}

// SubmitPixel asks the server to set p to colorIndex on the client's canvas.
// A cooldown refusal is a result (OutcomeStillOnCooldown), not an error. A response
// that matches neither shape yields a *ProtocolError. No retries are made.
func (c *Client) SubmitPixel(ctx context.Context, p Point, colorIndex int) (*SubmitResult, error) {
	var req setPixelRequest
	req.OperationName = "setPixel"
	req.Variables.Input.ActionName = setPixelAction
	req.Variables.Input.PixelMessageData = pixelMessageData{
		Coordinate:  p,
		ColorIndex:  colorIndex,
		CanvasIndex: c.canvasIndex,
	}
	req.Query = setPixelQuery

	raw, err := c.postJSON(ctx, queryEndpoint, req)
	if err != nil {
		return nil, err
	}
	res, err := parseSetPixelResponse(raw)
	if err != nil {
		return nil, err
	}
	res.Pixel = p
	res.ColorIndex = colorIndex
	return res, nil
}

func parseSetPixelResponse(raw []byte) (*SubmitResult, error) {
	var resp setPixelResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ProtocolError{Message: fmt.Sprintf("decode: %v", err), RawBody: raw}
	}

	if resp.Data != nil && resp.Data.Act != nil {
		for _, item := range resp.Data.Act.Data {
			if item.Data != nil && item.Data.NextAvailablePixelTimestamp != nil {
				return &SubmitResult{
					Outcome:       OutcomeAccepted,
					NextAvailable: unixMillisToTime(*item.Data.NextAvailablePixelTimestamp),
				}, nil
			}
		}
	}

	for _, e := range resp.Errors {
		if e.Extensions != nil && e.Extensions.NextAvailablePixelTs != nil {
			return &SubmitResult{
				Outcome:       OutcomeStillOnCooldown,
				NextAvailable: unixMillisToTime(*e.Extensions.NextAvailablePixelTs),
			}, nil
		}
	}

	pe := &ProtocolError{RawBody: raw}
	if len(resp.Errors) > 0 {
		pe.Message = resp.Errors[0].Message
	}
	return nil, pe
}
