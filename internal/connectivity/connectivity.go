// Package connectivity turns platform reachability callbacks into a stream of
// availability events owned by a context.
package connectivity

import (
	"context"
	"sync"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"go.uber.org/zap"
)

// Subscription identifies one registered platform callback.
type Subscription interface{}

// Platform is the reachability capability of the host. Whether an event is
// delivered on subscribe is up to the binding.
type Platform interface {
	Subscribe(callback func(available bool)) (Subscription, error)
	Unsubscribe(sub Subscription)
}

type Monitor struct {
	platform Platform
	buffer   int
	logger   *zap.SugaredLogger
}

func NewMonitor(platform Platform, logger ...*zap.SugaredLogger) *Monitor {
	l := config.GetLogger()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Monitor{platform: platform, buffer: 8, logger: l}
}

// Observe delivers every availability event the platform reports until ctx is
// done, then unsubscribes and closes the returned channel. No deduplication is
// done here.
func (m *Monitor) Observe(ctx context.Context) (<-chan bool, error) {
	events := make(chan bool, m.buffer)

	var mu sync.Mutex
	closed := false

	sub, err := m.platform.Subscribe(func(available bool) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case events <- available:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	m.logger.Debugw("connectivity observation started")

	go func() {
		<-ctx.Done()
		m.platform.Unsubscribe(sub)

		mu.Lock()
		closed = true
		close(events)
		mu.Unlock()
		m.logger.Debugw("connectivity observation stopped")
	}()

	return events, nil
}
