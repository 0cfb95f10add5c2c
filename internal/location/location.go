// Package location wraps platform geolocation behind permission gating and
// exposes a single-shot, cancellable "current position" request.
package location

import (
	"context"
	"errors"
	"sync"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"go.uber.org/zap"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrNoFix            = errors.New("no location fix available")
)

// Permission is the location permission currently held by the process.
type Permission int

const (
	PermissionNone Permission = iota
	PermissionCoarse
	PermissionFine
)

// Platform is the geolocation capability of the host.
type Platform interface {
	CheckPermission() Permission
	// RequestPermission asks the user interactively and reports whether it was granted.
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition returns a single fix, or nil if none can be determined.
	CurrentPosition(ctx context.Context) (*model.Coordinates, error)
}

// Notifier shows a transient, non-fatal message to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// request is one outstanding acquisition; its cancel func is the cancellation token.
type request struct {
	cancel context.CancelFunc
}

type Provider struct {
	platform      Platform
	notifier      Notifier
	deniedMessage string
	logger        *zap.SugaredLogger

	mu      sync.Mutex
	pending *request
}

type Option func(*Provider)

func WithNotifier(n Notifier) Option {
	return func(p *Provider) { p.notifier = n }
}

func WithDeniedMessage(msg string) Option {
	return func(p *Provider) { p.deniedMessage = msg }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Provider) { p.logger = l }
}

func NewProvider(platform Platform, opts ...Option) *Provider {
	p := &Provider{
		platform:      platform,
		deniedMessage: ErrPermissionDenied.Error(),
		logger:        config.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire resolves the current position asynchronously and calls onResult
// exactly once with the fix, or with nil when permission is denied or no fix
// is available. A later Acquire supersedes an earlier one, and a superseded or
// cancelled request never calls onResult.
func (p *Provider) Acquire(ctx context.Context, onResult func(*model.Coordinates)) {
	ctx, cancel := context.WithCancel(ctx)
	req := &request{cancel: cancel}

	p.mu.Lock()
	if p.pending != nil {
		p.pending.cancel()
	}
	p.pending = req
	p.mu.Unlock()

	go func() {
		coords, err := p.resolve(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Infow("location unavailable, caller falls back", "error", err)
		}
		p.deliver(ctx, req, coords, onResult)
	}()
}

// CancelPending cancels the outstanding request, if any.
func (p *Provider) CancelPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		return
	}
	p.pending.cancel()
	p.pending = nil
}

// deliver hands coords to onResult only if req is still the pending request.
func (p *Provider) deliver(ctx context.Context, req *request, coords *model.Coordinates, onResult func(*model.Coordinates)) {
	p.mu.Lock()
	if p.pending != req || ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.pending = nil
	p.mu.Unlock()

	onResult(coords)
	req.cancel()
}

func (p *Provider) resolve(ctx context.Context) (*model.Coordinates, error) {
	if p.platform.CheckPermission() == PermissionNone {
		granted, err := p.platform.RequestPermission(ctx)
		if err != nil {
			return nil, err
		}
		if !granted {
			if p.notifier != nil && ctx.Err() == nil {
				p.notifier.Notify(p.deniedMessage)
			}
			return nil, ErrPermissionDenied
		}
		// Granted: retry the acquisition with the new permission.
		if p.platform.CheckPermission() == PermissionNone {
			return nil, ErrPermissionDenied
		}
	}

	coords, err := p.platform.CurrentPosition(ctx)
	if err != nil {
		return nil, err
	}
	if coords == nil {
		return nil, ErrNoFix
	}
	return coords, nil
}
