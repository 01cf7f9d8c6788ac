package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/manash/imgpost/internal/provider"
)

// State is the position of a single attempt in the retry state machine.
type State int

const (
	StatePending State = iota
	StateSuccess
	StateRetryable
	StateFatal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSuccess:
		return "success"
	case StateRetryable:
		return "retryable"
	case StateFatal:
		return "fatal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the tagged result of one inference call.
type Outcome struct {
	State      State
	StatusCode int
	Body       []byte
	Err        error

	// Hint is the server-suggested wait while the model loads. Only valid when Hinted.
	Hint   time.Duration
	Hinted bool
}

type loadingResponse struct {
	Error         string   `json:"error"`
	EstimatedTime *float64 `json:"estimated_time"`
}

func classify(statusCode int, body []byte) Outcome {
	out := Outcome{StatusCode: statusCode, Body: body}

	switch statusCode {
	case http.StatusOK:
		out.State = StateSuccess
		return out
	case http.StatusUnauthorized:
		out.State = StateFatal
		out.Err = statusError(provider.ErrAuth, statusCode, body)
		return out
	case http.StatusNotFound:
		out.State = StateFatal
		out.Err = statusError(provider.ErrNotFound, statusCode, body)
		return out
	case http.StatusForbidden, http.StatusTooManyRequests:
		out.State = StateRetryable
		out.Err = statusError(provider.ErrRateLimited, statusCode, body)
		return out
	case http.StatusServiceUnavailable:
		out.State = StateRetryable
		out.Err = statusError(provider.ErrTransientServer, statusCode, body)
		if hint, ok := loadingHint(body); ok {
			out.Hint = hint
			out.Hinted = true
		}
		return out
	default:
		out.State = StateRetryable
		out.Err = statusError(provider.ErrTransientServer, statusCode, body)
		return out
	}
}

// classifyTransportError handles failures where no response was received.
// A cancelled context ends the run; anything else is a retryable network error.
func classifyTransportError(ctx context.Context, err error) Outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{State: StateFatal, Err: ctxErr}
	}
	if errors.Is(err, context.Canceled) {
		return Outcome{State: StateFatal, Err: err}
	}
	return Outcome{State: StateRetryable, Err: fmt.Errorf("%w: %v", provider.ErrNetwork, err)}
}

// MaxLoadingHint is the longest estimated_time accepted from the server.
const MaxLoadingHint = time.Hour

// loadingHint extracts estimated_time from a 503 body. A body that does not
// parse, or has no usable value, yields no hint. Values above
// MaxLoadingHint count as unusable.
func loadingHint(body []byte) (time.Duration, bool) {
	var lr loadingResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return 0, false
	}
	if lr.EstimatedTime == nil {
		return 0, false
	}
	secs := *lr.EstimatedTime
	if secs < 0 || secs > MaxLoadingHint.Seconds() {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

func statusError(kind error, statusCode int, body []byte) error {
	return &provider.StatusError{Kind: kind, StatusCode: statusCode, Body: string(body)}
}
