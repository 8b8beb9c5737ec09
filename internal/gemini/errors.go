package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindAuth       Kind = "auth"
	KindQuota      Kind = "quota"
	KindBadRequest Kind = "bad_request"
	KindNetwork    Kind = "network"
	KindNoImage    Kind = "no_image"
	KindTimeout    Kind = "timeout"
)

var (
	ErrMissingCredential = errors.New("api key is missing")
	ErrEmptyPrompt       = errors.New("prompt is empty")
)

// Error is a classified failure of a remote call.
type Error struct {
	Kind       Kind
	StatusCode int
	Status     string
	Reason     string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("gemini ")
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type   string `json:"@type"`
			Reason string `json:"reason"`
		} `json:"details"`
	} `json:"error"`
}

func classifyResponse(statusCode int, body []byte) *Error {
	out := &Error{Kind: KindUnknown, StatusCode: statusCode}

	var decoded apiErrorBody
	if err := json.Unmarshal(body, &decoded); err == nil {
		out.Status = decoded.Error.Status
		out.Message = decoded.Error.Message
		for _, d := range decoded.Error.Details {
			if d.Reason != "" {
				out.Reason = d.Reason
				break
			}
		}
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(body))
	}
	if len(out.Message) > 500 {
		out.Message = out.Message[:500]
	}

	switch {
	case out.Reason == "API_KEY_INVALID":
		out.Kind = KindAuth
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		out.Kind = KindAuth
	case statusCode == http.StatusTooManyRequests:
		out.Kind = KindQuota
	case statusCode == http.StatusBadRequest:
		out.Kind = KindBadRequest
	default:
		out.Kind = kindFromStatus(out.Status)
	}
	return out
}

func kindFromStatus(status string) Kind {
	switch status {
	case "RESOURCE_EXHAUSTED":
		return KindQuota
	case "PERMISSION_DENIED", "UNAUTHENTICATED":
		return KindAuth
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return KindBadRequest
	case "DEADLINE_EXCEEDED":
		return KindTimeout
	default:
		return KindUnknown
	}
}

func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnknown, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || netErr != nil {
		return &Error{Kind: KindNetwork, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}
