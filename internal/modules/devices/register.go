package devices

import (
	"database/sql"
	"log/slog"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/config"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/modules/devices/repository"
	"weatherdash/internal/modules/devices/service"
)

// RegisterFeature wires the device and telemetry store into the data API.
func RegisterFeature(api *dataapi.Server, db *sql.DB, tables config.Tables, hub *changefeed.Hub, logger *slog.Logger) (*service.Service, error) {
	deviceRepository, err := repository.NewRepository(db, tables)
	if err != nil {
		return nil, err
	}
	deviceService := service.NewService(deviceRepository, hub, logger)
	deviceService.Register(api)
	return deviceService, nil
}
