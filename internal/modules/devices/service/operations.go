package service

import (
	"context"
	"encoding/json"

	"weatherdash/internal/dataapi"
	"weatherdash/internal/types"
)

// Register exposes the device and telemetry operations on the data API.
func (s *Service) Register(api *dataapi.Server) {
	api.Register(dataapi.GetDevices, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			DeviceID string `json:"device_id"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.Device(ctx, in.DeviceID)
	})

	api.Register(dataapi.CreateDevices, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input types.Device `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.CreateDevice(ctx, in.Input)
	})

	api.Register(dataapi.DeleteDevices, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input struct {
				DeviceID string `json:"device_id"`
			} `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.DeleteDevice(ctx, in.Input.DeviceID)
	})

	api.Register(dataapi.UpdateDevices, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input struct {
				DeviceID string  `json:"device_id"`
				Status   *string `json:"status"`
			} `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.UpdateDeviceStatus(ctx, in.Input.DeviceID, in.Input.Status)
	})

	api.Register(dataapi.ListDevices, func(ctx context.Context, vars json.RawMessage) (any, error) {
		items, err := s.Devices(ctx)
		if err != nil {
			return nil, err
		}
		return dataapi.Page[types.Device]{Items: items}, nil
	})

	api.Register(dataapi.GetTelemetry, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in types.TelemetryKey
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.Telemetry(ctx, in)
	})

	api.Register(dataapi.CreateTelemetry, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input types.Telemetry `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		stored, created, err := s.createTelemetry(ctx, in.Input)
		if err != nil {
			return nil, err
		}
		if !created {
			return dataapi.Existing{Record: stored}, nil
		}
		return stored, nil
	})

	api.Register(dataapi.DeleteTelemetry, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			Input types.TelemetryKey `json:"input"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		return s.DeleteTelemetry(ctx, in.Input)
	})

	api.Register(dataapi.ListTelemetry, func(ctx context.Context, vars json.RawMessage) (any, error) {
		var in struct {
			DeviceID string `json:"device_id"`
			Limit    int    `json:"limit"`
		}
		if err := dataapi.DecodeVars(vars, &in); err != nil {
			return nil, err
		}
		if in.Limit < 0 {
			return nil, dataapi.Invalid("limit must be >= 0")
		}
		items, err := s.ListTelemetry(ctx, in.DeviceID, in.Limit)
		if err != nil {
			return nil, err
		}
		return dataapi.Page[types.Telemetry]{Items: items}, nil
	})
}
