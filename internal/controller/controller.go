// Package controller owns the observable forecast state. It coordinates
// location acquisition, connectivity events and forecast fetches through a
// single event loop, which is the only writer of the state.
//
// States move Loading -> {Loaded | Error} and back to Loading on a re-fetch
// trigger. Losing connectivity forces Error from any state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoConnectivity = errors.New("no connectivity")
	ErrDisposed       = errors.New("controller disposed")
	ErrStarted        = errors.New("controller already started")
)

// Locator yields the current position once per Acquire; nil means "use the fallback".
type Locator interface {
	Acquire(ctx context.Context, onResult func(*model.Coordinates))
	CancelPending()
}

// ConnectivityObserver streams availability events until ctx is done.
type ConnectivityObserver interface {
	Observe(ctx context.Context) (<-chan bool, error)
}

// Fetcher performs one forecast fetch.
type Fetcher interface {
	GetForecast(ctx context.Context, req model.ForecastRequest) (*model.ForecastResult, error)
}

// LocaleResolver returns the units and language for the next request.
type LocaleResolver interface {
	Resolve() (model.Units, string)
}

// ReconnectPolicy decides whether regained connectivity triggers a re-fetch.
type ReconnectPolicy int

const (
	// RefetchUnlessLoaded re-fetches on reconnect unless a forecast is already shown.
	RefetchUnlessLoaded ReconnectPolicy = iota
	// RefetchOnError re-fetches on reconnect only from the Error state.
	RefetchOnError
)

// ParseReconnectPolicy accepts "unless_loaded" and "on_error"; anything else is RefetchUnlessLoaded.
func ParseReconnectPolicy(s string) ReconnectPolicy {
	if s == "on_error" {
		return RefetchOnError
	}
	return RefetchUnlessLoaded
}

func (p ReconnectPolicy) String() string {
	if p == RefetchOnError {
		return "on_error"
	}
	return "unless_loaded"
}

type Options struct {
	Policy ReconnectPolicy
	// Fallback is used whenever the locator yields nil.
	Fallback model.Coordinates
	// FetchTimeout bounds one fetch; zero waits indefinitely.
	FetchTimeout          time.Duration
	NoConnectivityMessage string
	Logger                *zap.SugaredLogger
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig() Options {
	lat, lon := config.GetFallbackCoordinates()
	return Options{
		Policy:                ParseReconnectPolicy(config.GetReconnectPolicy()),
		Fallback:              model.Coordinates{Latitude: lat, Longitude: lon},
		FetchTimeout:          config.GetFetchTimeout(),
		NoConnectivityMessage: config.GetNoConnectivityMessage(),
		Logger:                config.GetLogger(),
	}
}

type Controller struct {
	locator      Locator
	connectivity ConnectivityObserver
	fetcher      Fetcher
	locale       LocaleResolver
	opts         Options
	logger       *zap.SugaredLogger

	events chan event

	// Owned by the loop goroutine.
	online    bool
	locateSeq uint64
	job       *fetchJob

	mu          sync.RWMutex
	state       model.UIState
	latest      *model.ForecastResult
	subscribers map[*subscriber]struct{}

	startOnce   sync.Once
	disposeOnce sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	started     bool
}

type fetchJob struct {
	id     string
	cancel context.CancelFunc
}

func New(locator Locator, connectivity ConnectivityObserver, fetcher Fetcher, locale LocaleResolver, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = config.GetLogger()
	}
	if opts.NoConnectivityMessage == "" {
		opts.NoConnectivityMessage = "No internet connection"
	}
	if opts.Fallback == (model.Coordinates{}) {
		opts.Fallback = model.Coordinates{Latitude: config.DefaultFallbackLatitude, Longitude: config.DefaultFallbackLongitude}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		locator:      locator,
		connectivity: connectivity,
		fetcher:      fetcher,
		locale:       locale,
		opts:         opts,
		logger:       opts.Logger,
		events:       make(chan event, 16),
		online:       true,
		state:        model.Loading(""),
		subscribers:  make(map[*subscriber]struct{}),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start activates the controller: it begins observing connectivity and
// acquiring the location, and runs the event loop until Dispose.
func (c *Controller) Start() error {
	if c.ctx.Err() != nil {
		return ErrDisposed
	}
	err := ErrStarted
	c.startOnce.Do(func() {
		var conn <-chan bool
		conn, err = c.connectivity.Observe(c.ctx)
		if err != nil {
			err = fmt.Errorf("observe connectivity: %w", err)
			return
		}
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()

		c.logger.Infow("forecast controller started", "reconnect_policy", c.opts.Policy.String())
		go c.loop(conn)
		c.post(refreshEvent{})
	})
	return err
}

// Refresh is the explicit re-fetch trigger: location is re-acquired and the
// forecast fetched again, superseding any fetch in flight.
// A refresh requested while the event queue is full is dropped, since one is
// already pending behind it.
func (c *Controller) Refresh() {
	select {
	case c.events <- refreshEvent{}:
	case <-c.ctx.Done():
	default:
		c.logger.Debugw("refresh dropped, event queue full")
	}
}

// State returns the current UI state.
func (c *Controller) State() model.UIState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Latest returns the last successfully fetched forecast, or nil.
func (c *Controller) Latest() *model.ForecastResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Dispose cancels the in-flight fetch and any pending location request, stops
// connectivity observation and closes all subscriptions. It is safe to call
// more than once.
func (c *Controller) Dispose() {
	c.disposeOnce.Do(func() {
		c.cancel()
		c.mu.RLock()
		started := c.started
		c.mu.RUnlock()
		if started {
			<-c.done
		} else {
			c.teardown()
		}
		c.logger.Infow("forecast controller disposed")
	})
}

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

func (c *Controller) loop(conn <-chan bool) {
	defer close(c.done)
	defer c.teardown()

	for {
		// Connectivity events are drained first so a known outage is applied
		// before any pending location or fetch result.
		select {
		case available, ok := <-conn:
			if !ok {
				conn = nil
				continue
			}
			c.onConnectivity(available)
			continue
		default:
		}

		select {
		case <-c.ctx.Done():
			return
		case available, ok := <-conn:
			if !ok {
				conn = nil
				continue
			}
			c.onConnectivity(available)
		case ev := <-c.events:
			ev.apply(c)
		}
	}
}

func (c *Controller) teardown() {
	c.cancelFetch()
	c.locator.CancelPending()

	c.mu.Lock()
	defer c.mu.Unlock()
	for s := range c.subscribers {
		s.close()
		delete(c.subscribers, s)
	}
}

func (c *Controller) onConnectivity(available bool) {
	prev := c.online
	c.online = available
	if prev == available {
		return
	}

	if !available {
		c.logger.Warnw("connectivity lost")
		c.cancelFetch()
		c.locateSeq++
		c.locator.CancelPending()
		c.setState(model.Failed(c.opts.NoConnectivityMessage))
		return
	}

	kind := c.State().Kind
	c.logger.Infow("connectivity regained", "state", kind.String())
	switch c.opts.Policy {
	case RefetchOnError:
		if kind == model.StateError {
			c.locate()
		}
	default:
		if kind != model.StateLoaded {
			c.locate()
		}
	}
}

// locate starts a new location acquisition, superseding the previous one.
func (c *Controller) locate() {
	if !c.online {
		c.setState(model.Failed(c.opts.NoConnectivityMessage))
		return
	}
	c.locateSeq++
	seq := c.locateSeq
	c.locator.Acquire(c.ctx, func(coords *model.Coordinates) {
		c.post(locationEvent{seq: seq, coords: coords})
	})
}

func (c *Controller) onLocation(seq uint64, coords *model.Coordinates) {
	if seq != c.locateSeq {
		return
	}
	if coords == nil {
		c.logger.Infow("no location fix, using fallback coordinates", "coordinates", c.opts.Fallback.String())
		fallback := c.opts.Fallback
		coords = &fallback
	}
	if !c.online {
		c.logger.Infow("skipping forecast fetch", "error", ErrNoConnectivity)
		return
	}

	units, lang := c.locale.Resolve()
	c.startFetch(model.ForecastRequest{Coordinates: *coords, Units: units, Language: lang})
}

func (c *Controller) startFetch(req model.ForecastRequest) {
	c.cancelFetch()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.opts.FetchTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.opts.FetchTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	job := &fetchJob{id: uuid.NewString(), cancel: cancel}
	c.job = job
	c.setState(model.Loading(job.id))

	c.logger.Infow("fetching forecast",
		"fetch_id", job.id,
		"coordinates", req.Coordinates.String(),
		"units", req.Units,
		"lang", req.Language,
	)
	go func() {
		result, err := c.fetch(ctx, req)
		c.post(fetchEvent{job: job, result: result, err: err})
	}()
}

// fetch runs the fetcher and converts a panic into an error.
func (c *Controller) fetch(ctx context.Context, req model.ForecastRequest) (result *model.ForecastResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("unexpected failure while fetching forecast: %v", r)
		}
	}()
	return c.fetcher.GetForecast(ctx, req)
}

func (c *Controller) onFetched(job *fetchJob, result *model.ForecastResult, err error) {
	if job != c.job {
		// Cancelled or superseded: the result must not touch the state.
		return
	}
	c.job = nil
	job.cancel()

	if err == nil && result == nil {
		err = &repository.ParseError{Err: repository.ErrEmptyBody}
	}
	if err != nil {
		msg := repository.Describe(err)
		c.logger.Errorw("forecast fetch failed", "fetch_id", job.id, "error", err)
		c.setState(model.Failed(msg))
		return
	}

	c.mu.Lock()
	c.latest = result
	c.mu.Unlock()
	c.logger.Infow("forecast loaded", "fetch_id", job.id, "city", result.City.Name, "periods", len(result.Periods))
	c.setState(model.Loaded(result, job.id))
}

func (c *Controller) cancelFetch() {
	if c.job == nil {
		return
	}
	c.job.cancel()
	c.job = nil
}

// setState publishes s unless it is identical to the current state. A new
// Loading while already Loading only records the new fetch id.
func (c *Controller) setState(s model.UIState) {
	c.mu.Lock()
	if c.state.Equal(s) {
		c.mu.Unlock()
		return
	}
	from := c.state.Kind
	c.state = s
	if from == model.StateLoading && s.Kind == model.StateLoading {
		c.mu.Unlock()
		return
	}
	subs := make([]*subscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	c.logger.Debugw("state transition", "from", from.String(), "to", s.Kind.String(), "reason", s.Reason)
	for _, sub := range subs {
		sub.send(s)
	}
}
