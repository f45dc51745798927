package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentuity/go-cellular/status"
)

// RedirectPrefix marks the payload of a 3xx response. The executor does not follow redirects.
const RedirectPrefix = "REDIRECT:"

// Result is the single outcome of one Execute call. Payload is the response body on Success and
// diagnostic text otherwise.
type Result struct {
	Status    status.Status `json:"status"`
	Payload   string        `json:"payload,omitempty"`
	SessionID string        `json:"session_id"`
	Duration  time.Duration `json:"duration"`
	// Log holds the session's log lines when the executor records sessions
	Log        string `json:"log,omitempty"`
	LogDropped int    `json:"log_dropped,omitempty"`
}

func (r Result) OK() bool {
	return r.Status == status.Success
}

// Redirect returns the Location of a 3xx response.
func (r Result) Redirect() (string, bool) {
	if r.Status != status.UnknownHttpResponse || !strings.HasPrefix(r.Payload, RedirectPrefix) {
		return "", false
	}
	return strings.TrimPrefix(r.Payload, RedirectPrefix), true
}

func (r Result) String() string {
	if r.Payload == "" {
		return fmt.Sprintf("%s (%s)", r.Status, r.Duration.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s (%s): %s", r.Status, r.Duration.Round(time.Millisecond), r.Payload)
}

func success(body []byte) Result {
	return Result{Status: status.Success, Payload: string(body)}
}

func failure(err error) Result {
	return Result{Status: status.Of(err), Payload: status.Detail(err)}
}
