package model

import (
	"fmt"
	"strings"
)

// ForecastResult is the OpenWeatherMap /data/2.5/forecast response.
// A result is replaced wholesale on every successful fetch and never mutated.
type ForecastResult struct {
	Cod     string           `json:"cod"`
	Message float64          `json:"message"`
	Count   int              `json:"cnt"`
	Periods []ForecastPeriod `json:"list"`
	City    City             `json:"city"`
}

type City struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Coord      Coordinates `json:"coord"`
	Country    string      `json:"country"`
	Population int64       `json:"population"`
	Timezone   int         `json:"timezone"` // shift in seconds from UTC
	Sunrise    int64       `json:"sunrise"`
	Sunset     int64       `json:"sunset"`
}

// ForecastPeriod is one timestamped sample of a multi-period forecast.
type ForecastPeriod struct {
	Timestamp  int64              `json:"dt"`
	Main       MainMetrics        `json:"main"`
	Conditions []WeatherCondition `json:"weather"`
	Clouds     Clouds             `json:"clouds"`
	Wind       Wind               `json:"wind"`
	Visibility int64              `json:"visibility"`
	Pop        float64            `json:"pop"`
	Sys        PeriodSys          `json:"sys"`
	Text       string             `json:"dt_txt"`
}

type MainMetrics struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	SeaLevel  int     `json:"sea_level"`
	GrndLevel int     `json:"grnd_level"`
	Humidity  int     `json:"humidity"`
}

type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Clouds struct {
	All int `json:"all"`
}

type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
	Gust  float64 `json:"gust"`
}

type PeriodSys struct {
	Pod string `json:"pod"`
}

// Current returns the first period, which stands for current conditions.
func (r *ForecastResult) Current() (ForecastPeriod, bool) {
	if r == nil || len(r.Periods) == 0 {
		return ForecastPeriod{}, false
	}
	return r.Periods[0], true
}

// Condition returns the authoritative (first) weather condition of the period.
func (p ForecastPeriod) Condition() WeatherCondition {
	if len(p.Conditions) == 0 {
		return WeatherCondition{}
	}
	return p.Conditions[0]
}

// Hour extracts the hour from dt_txt ("2024-01-01 15:00:00" -> "15").
// It returns "" when the text is not in that shape.
func (p ForecastPeriod) Hour() string {
	_, clock, ok := strings.Cut(p.Text, " ")
	if !ok {
		return ""
	}
	hour, _, ok := strings.Cut(clock, ":")
	if !ok {
		return ""
	}
	return hour
}

// PrettyTemperature truncates toward zero and appends a degree sign.
// The value is shown in whatever unit system the forecast was requested in.
func PrettyTemperature(temp float64) string {
	return fmt.Sprintf("%d°", int(temp))
}
