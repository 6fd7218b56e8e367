// internal/session/errors.go
// Description: Error taxonomy for the browser session. Lifecycle errors that
// are expected during an intentional shutdown are classified as ignorable so
// teardown proceeds instead of propagating them.

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NavigationError reports that the initial navigation failed. The caller must
// still close the session.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ignorableFragments are the protocol-level messages the browser emits when a
// target is torn down under our feet.
var ignorableFragments = []string{
	"navigating frame was detached",
	"frame was detached",
	"protocol error",
	"target closed",
	"disconnected",
	"websocket: close",
	"context canceled",
}

// IsIgnorable reports whether an error is an expected side effect of closing
// the browser and can safely be logged at info level instead of propagated.
func IsIgnorable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range ignorableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
