package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/modules/weather/repository"
	"weatherdash/internal/types"
)

const maxListLimit = 1000

type Service struct {
	repository repository.WeatherRepository
	hub        *changefeed.Hub
	logger     *slog.Logger

	// Held across a write and its publish so the feed sees each model's
	// changes in commit order.
	stationMu sync.Mutex
	sampleMu  sync.Mutex
}

func NewService(repository repository.WeatherRepository, hub *changefeed.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repository: repository, hub: hub, logger: logger}
}

func (s *Service) Station(ctx context.Context, stationKey string) (*types.WeatherStation, error) {
	return s.repository.GetStation(ctx, stationKey)
}

func (s *Service) Stations(ctx context.Context) ([]types.WeatherStation, error) {
	return s.repository.ListStations(ctx)
}

func (s *Service) CreateStation(ctx context.Context, st types.WeatherStation) (types.WeatherStation, error) {
	st.StationKey = strings.TrimSpace(st.StationKey)
	st.Owner = strings.TrimSpace(st.Owner)
	if st.StationKey == "" {
		return types.WeatherStation{}, dataapi.Invalid("stationKey is required")
	}
	if st.Owner == "" {
		return types.WeatherStation{}, dataapi.Invalid("owner is required")
	}
	s.stationMu.Lock()
	defer s.stationMu.Unlock()
	stored, created, err := s.repository.CreateStation(ctx, st)
	if err != nil {
		return types.WeatherStation{}, err
	}
	if created {
		s.publish(changefeed.ModelWeatherStation, changefeed.OpCreate, stored.StationKey, stored)
	}
	return stored, nil
}

func (s *Service) Sample(ctx context.Context, key types.SampleKey) (*types.WeatherSample, error) {
	return s.repository.GetSample(ctx, key)
}

// CreateSample stores sample once. The owner must be the owner of the parent
// station. Creating a sample that already exists returns the stored record
// and publishes nothing.
func (s *Service) CreateSample(ctx context.Context, sample types.WeatherSample) (types.WeatherSample, error) {
	stored, _, err := s.createSample(ctx, sample)
	return stored, err
}

func (s *Service) createSample(ctx context.Context, sample types.WeatherSample) (types.WeatherSample, bool, error) {
	if sample.StationKey == "" {
		return types.WeatherSample{}, false, dataapi.Invalid("stationKey is required")
	}
	if sample.Timestamp <= 0 {
		return types.WeatherSample{}, false, dataapi.Invalid("timestamp must be a positive unix time in seconds")
	}
	if sample.Owner == "" {
		return types.WeatherSample{}, false, dataapi.Invalid("owner is required")
	}

	station, err := s.repository.GetStation(ctx, sample.StationKey)
	if err != nil {
		return types.WeatherSample{}, false, err
	}
	if station == nil {
		return types.WeatherSample{}, false, dataapi.Invalid("unknown station %q", sample.StationKey)
	}
	if station.Owner != sample.Owner {
		return types.WeatherSample{}, false, dataapi.Unauthorized("owner does not own station %q", sample.StationKey)
	}

	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()
	stored, created, err := s.repository.InsertSample(ctx, sample)
	if err != nil {
		return types.WeatherSample{}, false, err
	}
	if created {
		s.publish(changefeed.ModelWeatherStationData, changefeed.OpCreate, stored.Key().String(), stored)
	} else {
		s.logger.Debug("sample already stored", "key", stored.Key().String())
	}
	return stored, created, nil
}

func (s *Service) Samples(ctx context.Context, q repository.SampleQuery) ([]types.WeatherSample, error) {
	if q.Limit > maxListLimit {
		q.Limit = maxListLimit
	}
	return s.repository.ListSamples(ctx, q)
}

func (s *Service) DeleteSample(ctx context.Context, key types.SampleKey) (*types.WeatherSample, error) {
	s.sampleMu.Lock()
	defer s.sampleMu.Unlock()
	deleted, err := s.repository.DeleteSample(ctx, key)
	if err != nil || deleted == nil {
		return deleted, err
	}
	s.publish(changefeed.ModelWeatherStationData, changefeed.OpDelete, deleted.Key().String(), deleted)
	return deleted, nil
}

func (s *Service) publish(model string, op changefeed.Op, key string, record any) {
	if s.hub == nil {
		return
	}
	if _, err := s.hub.Publish(model, op, key, record); err != nil {
		s.logger.Error("publish change failed", "model", model, "key", key, "error", err)
	}
}
