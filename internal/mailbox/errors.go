// File: internal/mailbox/errors.go
package mailbox

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSession is returned by session-scoped operations when the client
	// has not created or restored a session yet.
	ErrNoSession = errors.New("mailbox: no active session")

	// ErrSessionExpired is returned when the provider no longer knows the
	// current session id.
	ErrSessionExpired = errors.New("mailbox: session not found or expired")

	// ErrWaitTimeout is returned by WaitForMail when no new message arrived
	// before the requested timeout elapsed.
	ErrWaitTimeout = errors.New("mailbox: no new mail before timeout")

	// ErrNoAddress is returned when the provider accepted a session but
	// handed back no usable address.
	ErrNoAddress = errors.New("mailbox: provider returned no address")
)

// APIError is a definitive rejection from the mailbox API, either a GraphQL
// errors payload or a non-retryable HTTP status. It is never produced for
// transient transport failures, which are retried and surfaced as plain
// errors.
type APIError struct {
	StatusCode int
	Messages   []string
}

func (e *APIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("mailbox: api error: %s", strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("mailbox: api error: http status %d", e.StatusCode)
}
