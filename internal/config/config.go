package config

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var once sync.Once
var logger *zap.SugaredLogger
var loggerOnce sync.Once

// Fallback location used when no fix is available (central London).
const (
	DefaultFallbackLatitude  = 51.51650199277461
	DefaultFallbackLongitude = -0.12913951336584356
)

// isTestRun returns true if the current process is a Go test binary.
func isTestRun() bool {
	return flag.Lookup("test.v") != nil || filepath.Ext(os.Args[0]) == ".test"
}

func initConfig() {
	once.Do(func() {
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		root, err := getProjectRoot()
		if err != nil {
			GetLogger().Errorw("Error finding project root", "error", err)
		}
		viper.SetConfigType("yaml")

		viper.SetConfigName("config")
		viper.AddConfigPath(root)
		if err = viper.ReadInConfig(); err != nil {
			GetLogger().Errorw("Error reading config file", "error", err)
		}

		if !isTestRun() {
			return
		}
		viper.SetConfigName("config_test")
		if err = viper.MergeInConfig(); err != nil {
			GetLogger().Errorw("Error merging test config file", "error", err)
		}
	})
}

func getProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

// ReloadConfigForTest resets the config singleton and reloads Viper config. Use only in tests.
func ReloadConfigForTest() {
	once = sync.Once{}
	initConfig()
}

func GetLogger() *zap.SugaredLogger {
	loggerOnce.Do(func() {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		logger = l.Sugar()
	})
	return logger
}

func GetOpenWeatherApiUrl() string {
	initConfig()
	return strings.TrimRight(viper.GetString("openweathermap.api_url"), "/")
}

// GetOpenWeatherMapAPIKey returns the forecast API credential. It is only ever
// read from the environment (or a local .env file), never from config.yaml.
func GetOpenWeatherMapAPIKey() string {
	_ = godotenv.Load()
	return os.Getenv("OPENWEATHERMAP_API_KEY")
}

// GetFetchTimeout returns the deadline applied to one forecast fetch.
// Zero means no deadline.
func GetFetchTimeout() time.Duration {
	initConfig()
	return parseDuration(viper.GetString("openweathermap.fetch_timeout"), 0)
}

func GetReconnectPolicy() string {
	initConfig()
	return viper.GetString("controller.reconnect_policy")
}

func GetNoConnectivityMessage() string {
	initConfig()
	msg := viper.GetString("controller.no_connectivity_message")
	if msg == "" {
		return "No internet connection"
	}
	return msg
}

// GetFallbackCoordinates returns the coordinates used when location is unavailable.
func GetFallbackCoordinates() (lat, lon float64) {
	initConfig()
	lat, lon = DefaultFallbackLatitude, DefaultFallbackLongitude
	if viper.IsSet("location.fallback_latitude") && viper.IsSet("location.fallback_longitude") {
		lat = viper.GetFloat64("location.fallback_latitude")
		lon = viper.GetFloat64("location.fallback_longitude")
	}
	return
}

// GetLocationPermission returns the simulated permission state: granted, denied or prompt.
func GetLocationPermission() string {
	initConfig()
	p := strings.ToLower(viper.GetString("location.permission"))
	if p == "" {
		return "prompt"
	}
	return p
}

func GetLocationPromptGrants() bool {
	initConfig()
	return viper.GetBool("location.prompt_grants")
}

// GetDeviceFix returns the configured device position. ok is false when no fix
// is configured or either coordinate does not parse.
func GetDeviceFix() (lat, lon float64, ok bool) {
	initConfig()
	latStr := viper.GetString("location.latitude")
	lonStr := viper.GetString("location.longitude")
	if latStr == "" || lonStr == "" {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func GetPermissionDeniedMessage() string {
	initConfig()
	msg := viper.GetString("location.permission_denied_message")
	if msg == "" {
		return "Location permission denied"
	}
	return msg
}

// GetLanguageOverride returns the configured language tag, or "" to follow the environment locale.
func GetLanguageOverride() string {
	initConfig()
	return viper.GetString("locale.language")
}

func GetConnectivityProbeAddr() string {
	initConfig()
	return viper.GetString("connectivity.probe_addr")
}

// GetConnectivityProbeInterval defaults to 10s if not set or invalid.
func GetConnectivityProbeInterval() time.Duration {
	initConfig()
	return parseDuration(viper.GetString("connectivity.probe_interval"), 10*time.Second)
}

// GetConnectivityProbeTimeout defaults to 3s if not set or invalid.
func GetConnectivityProbeTimeout() time.Duration {
	initConfig()
	return parseDuration(viper.GetString("connectivity.probe_timeout"), 3*time.Second)
}

func GetRedisAddr() string {
	initConfig()
	return viper.GetString("redis.addr")
}

func GetRedisStateChannel() string {
	initConfig()
	ch := viper.GetString("redis.state_channel")
	if ch == "" {
		return "forecast:state"
	}
	return ch
}

func GetRedisNoticeChannel() string {
	initConfig()
	ch := viper.GetString("redis.notice_channel")
	if ch == "" {
		return "forecast:notice"
	}
	return ch
}

func GetServerPort() string {
	initConfig()
	return viper.GetString("server.port")
}

// GetServerTimeout returns server.<key> as a duration, falling back to def.
func GetServerTimeout(key string, def time.Duration) time.Duration {
	initConfig()
	return parseDuration(viper.GetString("server."+key), def)
}

// GetRateLimiterCleanupTimeout returns the rate limiter cleanup timeout as a time.Duration.
// Defaults to 3m if not set or invalid.
func GetRateLimiterCleanupTimeout() time.Duration {
	initConfig()
	return parseDuration(viper.GetString("rate_limiter.cleanup_timeout"), 3*time.Minute)
}

// GetRefreshRateLimiterConfig returns the per-client rate and burst for refresh requests.
func GetRefreshRateLimiterConfig() (rate float64, burst int) {
	initConfig()
	rate = viper.GetFloat64("rate_limiter.refresh.rate")
	if rate == 0 {
		rate = 0.2
	}
	burst = viper.GetInt("rate_limiter.refresh.burst")
	if burst == 0 {
		burst = 2
	}
	return
}

// GetOutboundRateLimiterConfig returns the rate and burst for calls to the forecast API.
func GetOutboundRateLimiterConfig() (rate float64, burst int) {
	initConfig()
	rate = viper.GetFloat64("rate_limiter.outbound.rate")
	if rate == 0 {
		rate = 1
	}
	burst = viper.GetInt("rate_limiter.outbound.burst")
	if burst == 0 {
		burst = 1
	}
	return
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
