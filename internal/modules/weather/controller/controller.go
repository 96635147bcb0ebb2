package controller

import (
	"context"
	"net/http"
	"time"

	"weatherdash/internal/modules/weather/repository"
	"weatherdash/internal/types"
)

// Reader is the read side of the weather service the dashboard API needs.
type Reader interface {
	Stations(ctx context.Context) ([]types.WeatherStation, error)
	Samples(ctx context.Context, q repository.SampleQuery) ([]types.WeatherSample, error)
}

type WeatherController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type weatherControllerImpl struct {
	reader Reader
	now    func() time.Time
}

func NewWeatherController(reader Reader) WeatherController {
	return &weatherControllerImpl{reader: reader, now: time.Now}
}

func (c *weatherControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1/stations/{key}/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/stations/{key}/samples", c.handleSamples)
}
