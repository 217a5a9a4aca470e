package uploads

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrOffline indicates the network reachability probe failed. It is
// retryable but does not consume an upload attempt.
var ErrOffline = errors.New("network unreachable")

// ErrSourceGone indicates the source file no longer exists. Retrying
// cannot help.
var ErrSourceGone = errors.New("source file unavailable")

// statusError carries an HTTP status from a transfer step so it can be
// classified.
type statusError struct {
	step   string
	status int
}

func (e statusError) Error() string {
	return fmt.Sprintf("%s: unexpected http status %d", e.step, e.status)
}

// permanentError marks an error as not worth retrying.
type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Retryable reports whether a terminal upload error may succeed on a
// later user-driven retry. Offline and transient failures are retryable;
// permanent-client failures (file gone, 4xx) are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSourceGone) {
		return false
	}
	var perm permanentError
	return !errors.As(err, &perm)
}

// transient reports whether a single step failure should be retried
// within the attempt loop.
func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSourceGone) {
		return false
	}
	var perm permanentError
	if errors.As(err, &perm) {
		return false
	}
	var status statusError
	if errors.As(err, &status) {
		// 5xx and 429 resolve on retry; other 4xx never will.
		return status.status >= 500 || status.status == 429
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "request canceled") ||
		strings.Contains(msg, "unexpected eof") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	return false
}
