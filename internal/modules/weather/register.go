package weather

import (
	"database/sql"
	"log/slog"
	"net/http"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/config"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/modules/weather/controller"
	"weatherdash/internal/modules/weather/repository"
	"weatherdash/internal/modules/weather/service"
)

// RegisterFeature wires the weather store into the data API and mounts the
// dashboard read routes.
func RegisterFeature(mux *http.ServeMux, api *dataapi.Server, db *sql.DB, tables config.Tables, hub *changefeed.Hub, logger *slog.Logger) (*service.Service, error) {
	weatherRepository, err := repository.NewRepository(db, tables)
	if err != nil {
		return nil, err
	}
	weatherService := service.NewService(weatherRepository, hub, logger)
	weatherService.Register(api)
	controller.NewWeatherController(weatherService).RegisterRoutes(mux)
	return weatherService, nil
}
