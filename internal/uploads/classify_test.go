package uploads

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"source gone", fmt.Errorf("fetch source: %w", ErrSourceGone), false},
		{"permanent wrapper", permanentError{errors.New("bad uri")}, false},
		{"http 500", statusError{step: "put bytes", status: 500}, true},
		{"http 503", statusError{step: "put bytes", status: 503}, true},
		{"http 429", statusError{step: "fetch source", status: 429}, true},
		{"http 403", statusError{step: "check source", status: 403}, false},
		{"http 400", statusError{step: "put bytes", status: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"dns", &net.DNSError{Err: "lookup failed", Name: "example.com"}, true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"tls timeout", errors.New("net/http: TLS handshake timeout"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"plain", errors.New("something else"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := transient(tc.err); got != tc.want {
				t.Errorf("transient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if Retryable(fmt.Errorf("check source: %w", ErrSourceGone)) {
		t.Error("source gone should not be retryable")
	}
	if Retryable(permanentError{errors.New("bad uri")}) {
		t.Error("permanent errors should not be retryable")
	}
	if !Retryable(ErrOffline) {
		t.Error("offline should be retryable")
	}
	if !Retryable(statusError{step: "put bytes", status: 502}) {
		t.Error("server failure should be retryable")
	}
}
