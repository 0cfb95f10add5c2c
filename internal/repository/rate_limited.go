package repository

import (
	"context"
	"fmt"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
	"golang.org/x/time/rate"
)

// RateLimitedRepository throttles calls to the forecast API. Waiting honours
// ctx, so a superseded fetch stops waiting as soon as it is cancelled.
type RateLimitedRepository struct {
	repo    ForecastRepository
	limiter *rate.Limiter
}

// NewRateLimitedRepository wraps repo; rps may be fractional.
func NewRateLimitedRepository(repo ForecastRepository, rps float64, burst int) *RateLimitedRepository {
	return &RateLimitedRepository{
		repo:    repo,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimitedRepository) GetForecast(ctx context.Context, req model.ForecastRequest) (*model.ForecastResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait canceled: %w", err)
	}
	return r.repo.GetForecast(ctx, req)
}

var _ ForecastRepository = (*RateLimitedRepository)(nil)
