package service

import (
	"context"
	"encoding/json"

	"weatherdash/internal/dataapi"
	"weatherdash/internal/modules/weather/repository"
	"weatherdash/internal/types"
)

// Register exposes the weather operations on the data API.
func (s *Service) Register(api *dataapi.Server) {
	api.Register(dataapi.GetWeatherStation, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			StationKey string `json:"stationKey"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.Station(ctx, in.StationKey)
	})

	api.Register(dataapi.CreateWeatherStation, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input types.WeatherStation `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.CreateStation(ctx, in.Input)
	})

	api.Register(dataapi.ListWeatherStations, func(ctx context.Context, vars json.RawMessage) (any, error) {
		items, err := s.Stations(ctx)
		if err != nil {
			return nil, err
		}
		return dataapi.Page[types.WeatherStation]{Items: items}, nil
	})

	api.Register(dataapi.GetWeatherStationData, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in types.SampleKey
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.Sample(ctx, in)
	})

	api.Register(dataapi.CreateWeatherStationData, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input types.WeatherSample `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		stored, created, err := s.createSample(ctx, in.Input)
		if err != nil {
			return nil, err
		}
		if !created {
			return dataapi.Existing{Record: stored}, nil
		}
		return stored, nil
	})

	api.Register(dataapi.ListWeatherStationData, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			StationKey string `json:"stationKey"`
			Limit      int    `json:"limit"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		if in.Limit < 0 {
			return nil, dataapi.Invalid("limit must be >= 0")
		}
		items, err := s.Samples(ctx, repository.SampleQuery{StationKey: in.StationKey, Limit: in.Limit})
		if err != nil {
			return nil, err
		}
		return dataapi.Page[types.WeatherSample]{Items: items}, nil
	})

	api.Register(dataapi.DeleteWeatherStationData, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input types.SampleKey `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.DeleteSample(ctx, in.Input)
	})
}
