package integrationtest

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/alicebob/miniredis/v2"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/controller"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/handler"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/middleware"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/redis"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/service"
)

const parisForecast = `{
	"cod": "200",
	"cnt": 2,
	"list": [
		{
			"dt": 1700000000,
			"main": {"temp": 10.75, "temp_min": 9.5, "temp_max": 11.2, "pressure": 1012, "humidity": 81},
			"weather": [{"main": "Clouds", "icon": "04d", "description": "overcast clouds"}],
			"clouds": {"all": 100},
			"wind": {"speed": 4.6, "deg": 230},
			"dt_txt": "2023-11-14 22:00:00"
		},
		{
			"dt": 1700010800,
			"main": {"temp": 9.1, "temp_min": 8.7, "temp_max": 9.1, "pressure": 1013, "humidity": 85},
			"weather": [{"main": "Rain", "icon": "10n", "description": "light rain"}],
			"clouds": {"all": 90},
			"wind": {"speed": 3.9, "deg": 220},
			"dt_txt": "2023-11-15 01:00:00"
		}
	],
	"city": {"name": "Paris", "country": "FR", "coord": {"lat": 48.8566, "lon": 2.3522}}
}`

// MockResponse is what the fake forecast API answers with.
type MockResponse struct {
	Code int
	Body string
}

// mockOWM is a fake OpenWeatherMap forecast endpoint.
type mockOWM struct {
	server *httptest.Server

	mu       sync.Mutex
	response MockResponse
	queries  []map[string]string
}

func newMockOWM() *mockOWM {
	m := &mockOWM{response: MockResponse{Code: http.StatusOK, Body: parisForecast}}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data/2.5/forecast" {
			http.NotFound(w, r)
			return
		}
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}

		m.mu.Lock()
		m.queries = append(m.queries, q)
		resp := m.response
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.Code)
		_, _ = w.Write([]byte(resp.Body))
	}))
	return m
}

func (m *mockOWM) respond(code int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = MockResponse{Code: code, Body: body}
}

func (m *mockOWM) requests() []map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]string(nil), m.queries...)
}

func (m *mockOWM) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = nil
	m.response = MockResponse{Code: http.StatusOK, Body: parisForecast}
}

// reachability is the endpoint the connectivity probe dials. Closing it makes
// the network look down; reopen brings it back on the same address.
type reachability struct {
	mu       sync.Mutex
	addr     string
	listener net.Listener
}

func newReachability() (*reachability, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	go acceptAndClose(l)
	return &reachability{addr: l.Addr().String(), listener: l}, nil
}

func acceptAndClose(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		_ = conn.Close()
	}
}

func (r *reachability) down() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		_ = r.listener.Close()
		r.listener = nil
	}
}

func (r *reachability) up() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", r.addr)
	if err != nil {
		return err
	}
	r.listener = l
	go acceptAndClose(l)
	return nil
}

func createMockRedisServer() (*miniredis.Miniredis, error) {
	return miniredis.Run()
}

// viewer is one running controller with its HTTP surface and Redis publisher.
type viewer struct {
	controller *controller.Controller
	httpServer *httptest.Server
	cancel     context.CancelFunc
	done       chan struct{}
}

func startViewer() (*viewer, error) {
	publisher := redis.NewStatePublisherFromConfig()
	c := service.NewForecastController(service.Dependencies{Notifier: publisher})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		publisher.Run(ctx, c)
		close(done)
	}()

	if err := c.Start(); err != nil {
		cancel()
		c.Dispose()
		return nil, err
	}

	router := handler.NewRouter(handler.NewForecastHandler(c), middleware.NewRefreshRateLimiter().Middleware)
	return &viewer{
		controller: c,
		httpServer: httptest.NewServer(router),
		cancel:     cancel,
		done:       done,
	}, nil
}

func (v *viewer) stop() {
	v.httpServer.Close()
	v.controller.Dispose()
	v.cancel()
	<-v.done
}
