package controller

import (
	"sync"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
)

// subscriber holds a bounded mailbox. When it is full the oldest state is
// dropped, so a slow reader misses intermediate states but never the latest.
type subscriber struct {
	mu     sync.Mutex
	ch     chan model.UIState
	closed bool
}

func (s *subscriber) send(state model.UIState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- state:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- state
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Subscribe returns a channel that first receives the current state and then
// every transition, buffering up to buffer states. The channel is closed by the
// returned cancel func or when the controller is disposed.
func (c *Controller) Subscribe(buffer int) (<-chan model.UIState, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan model.UIState, buffer)}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	sub.ch <- c.state
	c.subscribers[sub] = struct{}{}
	c.mu.Unlock()

	return sub.ch, func() {
		c.mu.Lock()
		delete(c.subscribers, sub)
		c.mu.Unlock()
		sub.close()
	}
}
