package controller

import "github.com/fakhrymubarak/weather-forecast-viewer/internal/model"

// event is applied on the loop goroutine only.
type event interface {
	apply(c *Controller)
}

type refreshEvent struct{}

func (refreshEvent) apply(c *Controller) { c.locate() }

type locationEvent struct {
	seq    uint64
	coords *model.Coordinates
}

func (e locationEvent) apply(c *Controller) { c.onLocation(e.seq, e.coords) }

type fetchEvent struct {
	job    *fetchJob
	result *model.ForecastResult
	err    error
}

func (e fetchEvent) apply(c *Controller) { c.onFetched(e.job, e.result, e.err) }
