package model

import "fmt"

// Coordinates is a single resolved geographic position.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%v,%v", c.Latitude, c.Longitude)
}

// Units is the measurement system requested from the forecast API.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// ForecastRequest carries everything a single forecast fetch needs.
type ForecastRequest struct {
	Coordinates Coordinates
	Units       Units
	Language    string
}
