// Package service assembles the forecast controller from configuration and
// the platform bindings of a headless process.
package service

import (
	"net/http"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/connectivity"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/controller"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/locale"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/location"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/repository"
)

// Dependencies overrides the platform bindings. Nil fields are built from config.
type Dependencies struct {
	HTTPClient   *http.Client
	Connectivity connectivity.Platform
	Location     location.Platform
	Locale       locale.Source
	Notifier     location.Notifier
}

// NewFetcher returns the forecast repository behind the outbound rate limiter.
func NewFetcher(httpClient *http.Client) controller.Fetcher {
	var repo repository.ForecastRepository
	if httpClient != nil {
		repo = repository.NewForecastRepository(httpClient)
	} else {
		repo = repository.NewForecastRepository()
	}
	rps, burst := config.GetOutboundRateLimiterConfig()
	return repository.NewRateLimitedRepository(repo, rps, burst)
}

// NewLocaleSource prefers locale.language from config and falls back to the
// process environment.
func NewLocaleSource() locale.Source {
	if lang := config.GetLanguageOverride(); lang != "" {
		return locale.StaticSource(lang)
	}
	return locale.NewEnvSource()
}

// NewForecastController wires a controller that has not been started yet.
func NewForecastController(deps Dependencies) *controller.Controller {
	logger := config.GetLogger()

	if deps.Connectivity == nil {
		deps.Connectivity = connectivity.NewProbePlatformFromConfig()
	}
	if deps.Location == nil {
		deps.Location = location.NewPlatformFromConfig()
	}
	if deps.Locale == nil {
		deps.Locale = NewLocaleSource()
	}

	locOpts := []location.Option{
		location.WithDeniedMessage(config.GetPermissionDeniedMessage()),
		location.WithLogger(logger),
	}
	if deps.Notifier != nil {
		locOpts = append(locOpts, location.WithNotifier(deps.Notifier))
	}

	return controller.New(
		location.NewProvider(deps.Location, locOpts...),
		connectivity.NewMonitor(deps.Connectivity, logger),
		NewFetcher(deps.HTTPClient),
		locale.NewResolver(deps.Locale),
		controller.OptionsFromConfig(),
	)
}
