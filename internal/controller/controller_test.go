package controller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/locale"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = time.Second
	tick    = time.Millisecond
)

var paris = &model.Coordinates{Latitude: 48.8566, Longitude: 2.3522}

type fakeLocator struct {
	coords   *model.Coordinates
	acquired atomic.Int32
	cancels  atomic.Int32
}

func (f *fakeLocator) Acquire(ctx context.Context, onResult func(*model.Coordinates)) {
	f.acquired.Add(1)
	go func() {
		if ctx.Err() != nil {
			return
		}
		onResult(f.coords)
	}()
}

func (f *fakeLocator) CancelPending() { f.cancels.Add(1) }

type fakeConnectivity struct {
	initial []bool
	events  chan bool
	err     error
}

func newFakeConnectivity(initial ...bool) *fakeConnectivity {
	return &fakeConnectivity{initial: initial, events: make(chan bool, 8)}
}

func (f *fakeConnectivity) Observe(ctx context.Context) (<-chan bool, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, v := range f.initial {
		f.events <- v
	}
	return f.events, nil
}

func (f *fakeConnectivity) emit(v bool) { f.events <- v }

type fetchFunc func(ctx context.Context, n int, req model.ForecastRequest) (*model.ForecastResult, error)

type fakeFetcher struct {
	mu     sync.Mutex
	reqs   []model.ForecastRequest
	handle fetchFunc
}

func (f *fakeFetcher) GetForecast(ctx context.Context, req model.ForecastRequest) (*model.ForecastResult, error) {
	f.mu.Lock()
	n := len(f.reqs)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.handle(ctx, n, req)
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakeFetcher) request(n int) model.ForecastRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[n]
}

func forecastFor(city string, temp float64) *model.ForecastResult {
	return &model.ForecastResult{
		City: model.City{Name: city},
		Periods: []model.ForecastPeriod{{
			Main:       model.MainMetrics{Temp: temp},
			Conditions: []model.WeatherCondition{{Main: "Clouds", Description: "overcast clouds", Icon: "04d"}},
			Text:       "2023-11-14 22:00:00",
		}},
	}
}

func succeed(result *model.ForecastResult) fetchFunc {
	return func(context.Context, int, model.ForecastRequest) (*model.ForecastResult, error) {
		return result, nil
	}
}

func newTestController(t *testing.T, loc Locator, conn ConnectivityObserver, fetcher Fetcher, opts ...func(*Options)) *Controller {
	t.Helper()
	o := Options{Logger: zap.NewNop().Sugar()}
	for _, fn := range opts {
		fn(&o)
	}
	c := New(loc, conn, fetcher, locale.NewResolver(locale.StaticSource("en")), o)
	t.Cleanup(c.Dispose)
	return c
}

func waitKind(t *testing.T, c *Controller, kind model.StateKind) model.UIState {
	t.Helper()
	require.Eventually(t, func() bool { return c.State().Kind == kind }, waitFor, tick,
		"state never became %s", kind)
	return c.State()
}

func TestController_InitialStateIsLoading(t *testing.T) {
	c := newTestController(t, &fakeLocator{}, newFakeConnectivity(), &fakeFetcher{handle: succeed(forecastFor("x", 1))})
	assert.Equal(t, model.StateLoading, c.State().Kind)
	assert.Nil(t, c.Latest())
}

func TestController_StartLoadsForecast(t *testing.T) {
	result := forecastFor("London", 10.75)
	fetcher := &fakeFetcher{handle: succeed(result)}
	c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(), fetcher)

	require.NoError(t, c.Start())
	state := waitKind(t, c, model.StateLoaded)

	assert.Same(t, result, state.Forecast)
	assert.Same(t, result, c.Latest())
	assert.NotEmpty(t, state.FetchID)
	assert.Equal(t, "10°", model.Summarize(state.Forecast).Current.Temperature)

	req := fetcher.request(0)
	assert.Equal(t, *paris, req.Coordinates)
	assert.Equal(t, model.UnitsMetric, req.Units)
	assert.Equal(t, "en", req.Language)
}

func TestController_NilLocationUsesFallback(t *testing.T) {
	fetcher := &fakeFetcher{handle: succeed(forecastFor("London", 10))}
	c := newTestController(t, &fakeLocator{coords: nil}, newFakeConnectivity(), fetcher)

	require.NoError(t, c.Start())
	waitKind(t, c, model.StateLoaded)

	assert.Equal(t, model.Coordinates{Latitude: 51.51650199277461, Longitude: -0.12913951336584356}, fetcher.request(0).Coordinates)
}

func TestController_ImperialLocale(t *testing.T) {
	fetcher := &fakeFetcher{handle: succeed(forecastFor("Monrovia", 80))}
	c := New(&fakeLocator{coords: paris}, newFakeConnectivity(), fetcher,
		locale.NewResolver(locale.StaticSource("lr")), Options{Logger: zap.NewNop().Sugar()})
	t.Cleanup(c.Dispose)

	require.NoError(t, c.Start())
	waitKind(t, c, model.StateLoaded)
	assert.Equal(t, model.UnitsImperial, fetcher.request(0).Units)
	assert.Equal(t, "lr", fetcher.request(0).Language)
}

func TestController_FetchFailures(t *testing.T) {
	tests := []struct {
		name   string
		handle fetchFunc
		want   string
	}{
		{
			name: "HTTP 401",
			handle: func(context.Context, int, model.ForecastRequest) (*model.ForecastResult, error) {
				return nil, &repository.StatusError{Code: http.StatusUnauthorized, Message: "Invalid API key"}
			},
			want: "Invalid API key",
		},
		{
			name: "transport fault",
			handle: func(context.Context, int, model.ForecastRequest) (*model.ForecastResult, error) {
				return nil, &repository.TransportError{Message: "connection refused"}
			},
			want: "connection refused",
		},
		{
			name: "nil result without error",
			handle: func(context.Context, int, model.ForecastRequest) (*model.ForecastResult, error) {
				return nil, nil
			},
			want: "Unable to read the forecast data",
		},
		{
			name: "panic in fetcher",
			handle: func(context.Context, int, model.ForecastRequest) (*model.ForecastResult, error) {
				panic("decoder blew up")
			},
			want: "unexpected failure while fetching forecast: decoder blew up",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(), &fakeFetcher{handle: tt.handle})
			require.NoError(t, c.Start())
			state := waitKind(t, c, model.StateError)
			assert.Equal(t, tt.want, state.Reason)
			assert.Nil(t, c.Latest())
		})
	}
}

func TestController_NoNetworkAtStartup(t *testing.T) {
	fetcher := &fakeFetcher{handle: succeed(forecastFor("London", 10))}
	loc := &fakeLocator{coords: paris}
	c := newTestController(t, loc, newFakeConnectivity(false), fetcher, func(o *Options) {
		o.NoConnectivityMessage = "No internet"
	})

	require.NoError(t, c.Start())
	state := waitKind(t, c, model.StateError)
	assert.Equal(t, "No internet", state.Reason)

	assert.Never(t, func() bool { return fetcher.calls() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, model.StateError, c.State().Kind)
}

func TestController_LastStartedFetchWins(t *testing.T) {
	slow := forecastFor("Slow", 1)
	fast := forecastFor("Fast", 2)
	release := make(chan struct{})
	firstReturned := make(chan struct{})

	fetcher := &fakeFetcher{handle: func(ctx context.Context, n int, _ model.ForecastRequest) (*model.ForecastResult, error) {
		if n == 0 {
			<-release // ignores ctx
			defer close(firstReturned)
			return slow, nil
		}
		return fast, nil
	}}
	c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(), fetcher)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return fetcher.calls() == 1 }, waitFor, tick)

	c.Refresh()
	state := waitKind(t, c, model.StateLoaded)
	assert.Same(t, fast, state.Forecast)

	close(release)
	<-firstReturned
	assert.Never(t, func() bool { return c.State().Forecast == slow }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Same(t, fast, c.Latest())
}

func TestController_SupersededFetchIsCancelled(t *testing.T) {
	cancelled := make(chan struct{})
	fetcher := &fakeFetcher{handle: func(ctx context.Context, n int, _ model.ForecastRequest) (*model.ForecastResult, error) {
		if n == 0 {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return forecastFor("Second", 2), nil
	}}
	c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(), fetcher)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return fetcher.calls() == 1 }, waitFor, tick)
	c.Refresh()

	select {
	case <-cancelled:
	case <-time.After(waitFor):
		t.Fatal("first fetch was not cancelled")
	}
	state := waitKind(t, c, model.StateLoaded)
	assert.Equal(t, "Second", state.Forecast.City.Name)
}

func TestController_ConnectivityLostForcesErrorAndCancels(t *testing.T) {
	cancelled := make(chan struct{})
	fetcher := &fakeFetcher{handle: func(ctx context.Context, n int, _ model.ForecastRequest) (*model.ForecastResult, error) {
		<-ctx.Done()
		close(cancelled)
		return forecastFor("Stale", 1), nil
	}}
	conn := newFakeConnectivity()
	c := newTestController(t, &fakeLocator{coords: paris}, conn, fetcher)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return fetcher.calls() == 1 }, waitFor, tick)

	conn.emit(false)
	state := waitKind(t, c, model.StateError)
	assert.Equal(t, "No internet connection", state.Reason)

	select {
	case <-cancelled:
	case <-time.After(waitFor):
		t.Fatal("in-flight fetch was not cancelled on connectivity loss")
	}
	assert.Never(t, func() bool { return c.State().Kind == model.StateLoaded }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestController_ConnectivityLostFromLoaded(t *testing.T) {
	conn := newFakeConnectivity()
	c := newTestController(t, &fakeLocator{coords: paris}, conn, &fakeFetcher{handle: succeed(forecastFor("London", 10))})

	require.NoError(t, c.Start())
	waitKind(t, c, model.StateLoaded)

	conn.emit(false)
	waitKind(t, c, model.StateError)
	assert.NotNil(t, c.Latest(), "the last snapshot is kept")
}

func TestController_ConnectivityAvailableWhileLoadedIsNoop(t *testing.T) {
	fetcher := &fakeFetcher{handle: succeed(forecastFor("London", 10))}
	conn := newFakeConnectivity(true)
	c := newTestController(t, &fakeLocator{coords: paris}, conn, fetcher)

	require.NoError(t, c.Start())
	loaded := waitKind(t, c, model.StateLoaded)

	conn.emit(true)
	conn.emit(true)
	assert.Never(t, func() bool { return fetcher.calls() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.True(t, loaded.Equal(c.State()))
}

func TestController_ConnectivityRegainedRefetchesOnce(t *testing.T) {
	for _, policy := range []ReconnectPolicy{RefetchUnlessLoaded, RefetchOnError} {
		t.Run(policy.String(), func(t *testing.T) {
			fetcher := &fakeFetcher{handle: succeed(forecastFor("London", 10))}
			loc := &fakeLocator{coords: paris}
			conn := newFakeConnectivity(false)
			c := newTestController(t, loc, conn, fetcher, func(o *Options) { o.Policy = policy })

			require.NoError(t, c.Start())
			waitKind(t, c, model.StateError)
			assert.Equal(t, 0, fetcher.calls())

			conn.emit(true)
			waitKind(t, c, model.StateLoaded)
			assert.Never(t, func() bool { return fetcher.calls() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
			assert.Equal(t, 1, fetcher.calls())
		})
	}
}

func TestController_RefreshWhileOfflineStaysInError(t *testing.T) {
	fetcher := &fakeFetcher{handle: succeed(forecastFor("London", 10))}
	c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(false), fetcher)

	require.NoError(t, c.Start())
	waitKind(t, c, model.StateError)
	c.Refresh()
	assert.Never(t, func() bool { return fetcher.calls() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestController_FetchTimeout(t *testing.T) {
	fetcher := &fakeFetcher{handle: func(ctx context.Context, _ int, _ model.ForecastRequest) (*model.ForecastResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(), fetcher, func(o *Options) {
		o.FetchTimeout = 20 * time.Millisecond
	})

	require.NoError(t, c.Start())
	state := waitKind(t, c, model.StateError)
	assert.Equal(t, "The forecast request timed out", state.Reason)
}

func nextState(t *testing.T, states <-chan model.UIState) model.UIState {
	t.Helper()
	select {
	case s, ok := <-states:
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(waitFor):
		t.Fatal("no state transition")
		return model.UIState{}
	}
}

func TestController_TransitionsAreTotal(t *testing.T) {
	fail := errors.New("boom")
	fetcher := &fakeFetcher{handle: func(_ context.Context, n int, _ model.ForecastRequest) (*model.ForecastResult, error) {
		if n == 1 {
			return nil, fail
		}
		return forecastFor("London", float64(n)), nil
	}}
	c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(), fetcher)

	states, unsubscribe := c.Subscribe(64)
	defer unsubscribe()

	var kinds []model.StateKind
	record := func(n int) {
		for i := 0; i < n; i++ {
			kinds = append(kinds, nextState(t, states).Kind)
		}
	}

	require.NoError(t, c.Start())
	record(2)
	c.Refresh()
	record(2)
	c.Refresh()
	record(2)

	assert.Equal(t, []model.StateKind{
		model.StateLoading,
		model.StateLoaded,
		model.StateLoading,
		model.StateError,
		model.StateLoading,
		model.StateLoaded,
	}, kinds)

	allowed := map[model.StateKind][]model.StateKind{
		model.StateLoading: {model.StateLoaded, model.StateError},
		model.StateLoaded:  {model.StateLoading},
		model.StateError:   {model.StateLoading},
	}
	for i := 1; i < len(kinds); i++ {
		assert.Contains(t, allowed[kinds[i-1]], kinds[i], "transition %s -> %s", kinds[i-1], kinds[i])
	}

	select {
	case s := <-states:
		t.Fatalf("unexpected extra state %s", s.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestController_Dispose(t *testing.T) {
	cancelled := make(chan struct{})
	fetcher := &fakeFetcher{handle: func(ctx context.Context, _ int, _ model.ForecastRequest) (*model.ForecastResult, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	}}
	loc := &fakeLocator{coords: paris}
	c := newTestController(t, loc, newFakeConnectivity(), fetcher)
	states, _ := c.Subscribe(8)

	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return fetcher.calls() == 1 }, waitFor, tick)

	c.Dispose()
	select {
	case <-cancelled:
	case <-time.After(waitFor):
		t.Fatal("in-flight fetch was not cancelled on dispose")
	}
	assert.GreaterOrEqual(t, loc.cancels.Load(), int32(1))

	for range states {
	}
	assert.NotPanics(t, c.Dispose)
	assert.ErrorIs(t, c.Start(), ErrDisposed)

	late, _ := c.Subscribe(1)
	_, open := <-late
	assert.False(t, open)
}

func TestController_DisposeBeforeStart(t *testing.T) {
	loc := &fakeLocator{}
	c := newTestController(t, loc, newFakeConnectivity(), &fakeFetcher{handle: succeed(nil)})
	c.Dispose()
	assert.Equal(t, int32(1), loc.cancels.Load())
	assert.ErrorIs(t, c.Start(), ErrDisposed)
}

func TestController_StartTwice(t *testing.T) {
	c := newTestController(t, &fakeLocator{coords: paris}, newFakeConnectivity(), &fakeFetcher{handle: succeed(forecastFor("x", 1))})
	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), ErrStarted)
}

func TestController_StartObserveError(t *testing.T) {
	conn := newFakeConnectivity()
	conn.err = errors.New("no connectivity service")
	c := newTestController(t, &fakeLocator{}, conn, &fakeFetcher{handle: succeed(nil)})
	assert.ErrorContains(t, c.Start(), "observe connectivity")
}

func TestParseReconnectPolicy(t *testing.T) {
	assert.Equal(t, RefetchOnError, ParseReconnectPolicy("on_error"))
	assert.Equal(t, RefetchUnlessLoaded, ParseReconnectPolicy("unless_loaded"))
	assert.Equal(t, RefetchUnlessLoaded, ParseReconnectPolicy(""))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig()
	assert.Equal(t, RefetchUnlessLoaded, opts.Policy)
	assert.Equal(t, 5*time.Second, opts.FetchTimeout)
	assert.Equal(t, model.Coordinates{Latitude: 51.51650199277461, Longitude: -0.12913951336584356}, opts.Fallback)
}
