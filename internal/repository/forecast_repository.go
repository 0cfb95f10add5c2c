package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"go.uber.org/zap"
)

const forecastPath = "/data/2.5/forecast"

// ForecastRepository defines the interface for forecast data access
type ForecastRepository interface {
	GetForecast(ctx context.Context, req model.ForecastRequest) (*model.ForecastResult, error)
}

// forecastRepository performs a single GET against the OpenWeatherMap forecast API.
// There is no retry and no caching.
type forecastRepository struct {
	baseURL    string
	apiKey     func() string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewForecastRepository creates a repository against the configured API URL and key.
func NewForecastRepository(httpClient ...*http.Client) ForecastRepository {
	client := http.DefaultClient
	if len(httpClient) > 0 && httpClient[0] != nil {
		client = httpClient[0]
	}
	return &forecastRepository{
		baseURL:    config.GetOpenWeatherApiUrl(),
		apiKey:     config.GetOpenWeatherMapAPIKey,
		httpClient: client,
		logger:     config.GetLogger(),
	}
}

// GetForecast fetches the multi-period forecast for req.
func (r *forecastRepository) GetForecast(ctx context.Context, req model.ForecastRequest) (*model.ForecastResult, error) {
	apiKey := r.apiKey()
	if apiKey == "" {
		return nil, ErrAPIKeyMissing
	}

	endpoint := r.baseURL + forecastPath + "?" + forecastQuery(req, apiKey).Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	r.logger.Debugw("fetching forecast",
		"lat", req.Coordinates.Latitude,
		"lon", req.Coordinates.Longitude,
		"units", req.Units,
		"lang", req.Language,
	)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Message: transportMessage(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Message: transportMessage(err), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: statusMessage(resp, body)}
	}

	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, &ParseError{Err: ErrEmptyBody}
	}
	var result model.ForecastResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ParseError{Err: err}
	}

	r.logger.Infow("forecast fetched", "city", result.City.Name, "periods", len(result.Periods))
	return &result, nil
}

func forecastQuery(req model.ForecastRequest, apiKey string) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(req.Coordinates.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(req.Coordinates.Longitude, 'f', -1, 64))
	params.Set("appid", apiKey)
	params.Set("units", string(req.Units))
	params.Set("lang", req.Language)
	return params
}

// statusMessage prefers the "message" field of an OpenWeatherMap error body
// and falls back to the HTTP status text.
func statusMessage(resp *http.Response, body []byte) string {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}
	return http.StatusText(resp.StatusCode)
}

// transportMessage strips the "Get <url>:" prefix so the API key in the URL
// never reaches the UI.
func transportMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return genericFetchMessage
}
