package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/modules/devices/repository"
	"weatherdash/internal/types"
)

const maxListLimit = 1000

type Service struct {
	repository repository.DeviceRepository
	hub        *changefeed.Hub
	logger     *slog.Logger

	// Held across a write and its publish so the feed sees each model's
	// changes in commit order.
	deviceMu    sync.Mutex
	telemetryMu sync.Mutex
}

func NewService(repository repository.DeviceRepository, hub *changefeed.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repository: repository, hub: hub, logger: logger}
}

func (s *Service) Device(ctx context.Context, deviceID string) (*types.Device, error) {
	return s.repository.GetDevice(ctx, deviceID)
}

func (s *Service) Devices(ctx context.Context) ([]types.Device, error) {
	return s.repository.ListDevices(ctx)
}

func (s *Service) CreateDevice(ctx context.Context, d types.Device) (types.Device, error) {
	d.DeviceID = strings.TrimSpace(d.DeviceID)
	d.Owner = strings.TrimSpace(d.Owner)
	if d.DeviceID == "" {
		return types.Device{}, dataapi.Invalid("device_id is required")
	}
	if d.Owner == "" {
		return types.Device{}, dataapi.Invalid("owner is required")
	}
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	stored, created, err := s.repository.CreateDevice(ctx, d)
	if err != nil {
		return types.Device{}, err
	}
	if created {
		s.publish(changefeed.ModelDevices, changefeed.OpCreate, stored.DeviceID, stored)
	}
	return stored, nil
}

func (s *Service) DeleteDevice(ctx context.Context, deviceID string) (*types.Device, error) {
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	deleted, err := s.repository.DeleteDevice(ctx, deviceID)
	if err != nil || deleted == nil {
		return deleted, err
	}
	s.publish(changefeed.ModelDevices, changefeed.OpDelete, deleted.DeviceID, deleted)
	return deleted, nil
}

// UpdateDeviceStatus records the status a device reported. It returns nil
// for an unknown device.
func (s *Service) UpdateDeviceStatus(ctx context.Context, deviceID string, status *string) (*types.Device, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, dataapi.Invalid("device_id is required")
	}
	s.deviceMu.Lock()
	defer s.deviceMu.Unlock()
	updated, err := s.repository.UpdateDeviceStatus(ctx, deviceID, status)
	if err != nil || updated == nil {
		return updated, err
	}
	s.publish(changefeed.ModelDevices, changefeed.OpUpdate, updated.DeviceID, updated)
	return updated, nil
}

func (s *Service) Telemetry(ctx context.Context, key types.TelemetryKey) (*types.Telemetry, error) {
	return s.repository.GetTelemetry(ctx, key)
}

// CreateTelemetry stores t once; its owner must be the device's owner.
func (s *Service) CreateTelemetry(ctx context.Context, t types.Telemetry) (types.Telemetry, error) {
	stored, _, err := s.createTelemetry(ctx, t)
	return stored, err
}

func (s *Service) createTelemetry(ctx context.Context, t types.Telemetry) (types.Telemetry, bool, error) {
	if t.DeviceID == "" {
		return types.Telemetry{}, false, dataapi.Invalid("device_id is required")
	}
	if t.Timestamp <= 0 {
		return types.Telemetry{}, false, dataapi.Invalid("timestamp must be a positive unix time in seconds")
	}
	if t.Owner == "" {
		return types.Telemetry{}, false, dataapi.Invalid("owner is required")
	}

	device, err := s.repository.GetDevice(ctx, t.DeviceID)
	if err != nil {
		return types.Telemetry{}, false, err
	}
	if device == nil {
		return types.Telemetry{}, false, dataapi.Invalid("unknown device %q", t.DeviceID)
	}
	if device.Owner != t.Owner {
		return types.Telemetry{}, false, dataapi.Unauthorized("owner does not own device %q", t.DeviceID)
	}

	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	stored, created, err := s.repository.InsertTelemetry(ctx, t)
	if err != nil {
		return types.Telemetry{}, false, err
	}
	if created {
		s.publish(changefeed.ModelTelemetry, changefeed.OpCreate, stored.Key().String(), stored)
	}
	return stored, created, nil
}

func (s *Service) ListTelemetry(ctx context.Context, deviceID string, limit int) ([]types.Telemetry, error) {
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repository.ListTelemetry(ctx, deviceID, limit)
}

func (s *Service) DeleteTelemetry(ctx context.Context, key types.TelemetryKey) (*types.Telemetry, error) {
	s.telemetryMu.Lock()
	defer s.telemetryMu.Unlock()
	deleted, err := s.repository.DeleteTelemetry(ctx, key)
	if err != nil || deleted == nil {
		return deleted, err
	}
	s.publish(changefeed.ModelTelemetry, changefeed.OpDelete, deleted.Key().String(), deleted)
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
