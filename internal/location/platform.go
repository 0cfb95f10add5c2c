package location

import (
	"context"
	"sync"

	"github.com/fakhrymubarak/weather-forecast-viewer/internal/config"
	"github.com/fakhrymubarak/weather-forecast-viewer/internal/model"
)

// ConfiguredPlatform is the geolocation binding for a headless process: the
// permission state, the answer to a permission prompt and the device fix all
// come from configuration.
type ConfiguredPlatform struct {
	mu           sync.Mutex
	permission   Permission
	promptGrants bool
	fix          *model.Coordinates
}

func NewConfiguredPlatform(permission Permission, promptGrants bool, fix *model.Coordinates) *ConfiguredPlatform {
	return &ConfiguredPlatform{permission: permission, promptGrants: promptGrants, fix: fix}
}

// NewPlatformFromConfig reads location.permission, location.prompt_grants and
// location.latitude/longitude.
func NewPlatformFromConfig() *ConfiguredPlatform {
	permission := PermissionNone
	promptGrants := config.GetLocationPromptGrants()
	switch config.GetLocationPermission() {
	case "granted", "fine":
		permission = PermissionFine
	case "coarse":
		permission = PermissionCoarse
	case "denied":
		promptGrants = false
	}
	return NewConfiguredPlatform(permission, promptGrants, deviceFix())
}

func deviceFix() *model.Coordinates {
	lat, lon, ok := config.GetDeviceFix()
	if !ok {
		return nil
	}
	return &model.Coordinates{Latitude: lat, Longitude: lon}
}

func (p *ConfiguredPlatform) CheckPermission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *ConfiguredPlatform) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.promptGrants {
		p.permission = PermissionFine
	}
	return p.promptGrants, nil
}

func (p *ConfiguredPlatform) CurrentPosition(ctx context.Context) (*model.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fix == nil {
		return nil, nil
	}
	fix := *p.fix
	return &fix, nil
}
