package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
)

// DialFunc opens a connection; it is net.Dialer.DialContext by default.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ProbePlatform is the reachability binding for a headless process. It dials
// addr every interval. The first observation is reported before Subscribe
// returns, then only transitions.
type ProbePlatform struct {
	addr     string
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc

	mu   sync.Mutex
	subs map[*probeSubscription]struct{}
}

type probeSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewProbePlatform(addr string, interval, timeout time.Duration, dial ...DialFunc) *ProbePlatform {
	d := (&net.Dialer{}).DialContext
	if len(dial) > 0 && dial[0] != nil {
		d = dial[0]
	}
	return &ProbePlatform{
		addr:     addr,
		interval: interval,
		timeout:  timeout,
		dial:     d,
		subs:     make(map[*probeSubscription]struct{}),
	}
}

// NewProbePlatformFromConfig reads connectivity.probe_addr, probe_interval and probe_timeout.
func NewProbePlatformFromConfig() *ProbePlatform {
	return NewProbePlatform(
		config.GetConnectivityProbeAddr(),
		config.GetConnectivityProbeInterval(),
		config.GetConnectivityProbeTimeout(),
	)
}

func (p *ProbePlatform) Subscribe(callback func(available bool)) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &probeSubscription{cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	p.subs[sub] = struct{}{}
	p.mu.Unlock()

	last := p.probe(ctx)
	callback(last)
	go p.run(ctx, sub, callback, last)
	return sub, nil
}

func (p *ProbePlatform) Unsubscribe(s Subscription) {
	sub, ok := s.(*probeSubscription)
	if !ok {
		return
	}
	p.mu.Lock()
	_, known := p.subs[sub]
	delete(p.subs, sub)
	p.mu.Unlock()
	if !known {
		return
	}
	sub.cancel()
	<-sub.done
}

func (p *ProbePlatform) run(ctx context.Context, sub *probeSubscription, callback func(bool), last bool) {
	defer close(sub.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := p.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if now != last {
				last = now
				callback(now)
			}
		}
	}
}

func (p *ProbePlatform) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
