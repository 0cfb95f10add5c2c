package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// StateMessage is the JSON payload published for every state transition.
type StateMessage struct {
	State   model.StateKind `json:"state"`
	Reason  string          `json:"reason,omitempty"`
	FetchID string          `json:"fetch_id,omitempty"`
	City    string          `json:"city,omitempty"`
	At      time.Time       `json:"at"`
}

// NoticeMessage is the JSON payload published for transient user notices.
type NoticeMessage struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// StateSource is anything that streams UI states, typically the controller.
type StateSource interface {
	Subscribe(buffer int) (<-chan model.UIState, func())
}

// StatePublisher mirrors state transitions and notices onto Redis channels.
// The last state is also kept under "<state channel>:last" for late readers.
type StatePublisher struct {
	client        *redisv9.Client
	stateChannel  string
	noticeChannel string
	logger        *zap.SugaredLogger
	now           func() time.Time
}

func NewStatePublisher(client *redisv9.Client, stateChannel, noticeChannel string) *StatePublisher {
	return &StatePublisher{
		client:        client,
		stateChannel:  stateChannel,
		noticeChannel: noticeChannel,
		logger:        config.GetLogger(),
		now:           time.Now,
	}
}

// NewStatePublisherFromConfig uses the shared client and the configured channels.
func NewStatePublisherFromConfig() *StatePublisher {
	return NewStatePublisher(GetClient(), config.GetRedisStateChannel(), config.GetRedisNoticeChannel())
}

// LastStateKey is where the most recent StateMessage is stored.
func (p *StatePublisher) LastStateKey() string {
	return p.stateChannel + ":last"
}

// Publish sends one state transition.
func (p *StatePublisher) Publish(ctx context.Context, state model.UIState) error {
	msg := StateMessage{
		State:   state.Kind,
		Reason:  state.Reason,
		FetchID: state.FetchID,
		At:      p.now().UTC(),
	}
	if state.Forecast != nil {
		msg.City = state.Forecast.City.Name
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Set(ctx, p.LastStateKey(), payload, 0)
		pipe.Publish(ctx, p.stateChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}

// Notify publishes a transient notice. Failures are logged, never returned.
func (p *StatePublisher) Notify(message string) {
	payload, err := json.Marshal(NoticeMessage{Message: message, At: p.now().UTC()})
	if err != nil {
		p.logger.Errorw("failed to encode notice", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.noticeChannel, payload).Err(); err != nil {
		p.logger.Warnw("failed to publish notice", "channel", p.noticeChannel, "error", err)
		return
	}
	p.logger.Infow("notice published", "channel", p.noticeChannel, "message", message)
}

// Run publishes every state from source until the subscription closes or
// ctx is done. Publish failures are logged and the next state is still sent.
func (p *StatePublisher) Run(ctx context.Context, source StateSource) {
	states, cancel := source.Subscribe(16)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			pubCtx, pubCancel := context.WithTimeout(ctx, publishTimeout)
			if err := p.Publish(pubCtx, state); err != nil {
				p.logger.Warnw("failed to publish state", "state", state.Kind.String(), "error", err)
			}
			pubCancel()
		}
	}
}
