package uploads

import (
	"context"
	"net"
	"time"
)

// Prober answers whether the network looks reachable before an upload
// attempt. A negative answer fails fast with ErrOffline instead of
// burning a retry on a known-offline state.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// DialProber checks reachability by opening a TCP connection to a
// well-known address.
type DialProber struct {
	Address string
	Timeout time.Duration
}

// NewDialProber returns a prober against the given host:port address.
func NewDialProber(address string) *DialProber {
	return &DialProber{Address: address, Timeout: 3 * time.Second}
}

func (p *DialProber) Reachable(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// AlwaysOnline is a prober for environments without a meaningful probe
// target, such as local development.
type AlwaysOnline struct{}

func (AlwaysOnline) Reachable(ctx context.Context) bool { return true }
