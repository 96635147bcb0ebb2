package controller

import (
	"log/slog"
	"net/http"

	"weatherdash/internal/modules/weather/repository"
	"weatherdash/internal/utils"
)

func (c *weatherControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.reader.Stations(r.Context())
	if err != nil {
		slog.Error("stations: list failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func (c *weatherControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station key")
		return
	}

	limit, err := parseLatestQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	latest, err := c.reader.Samples(r.Context(), repository.SampleQuery{StationKey: key, Limit: limit})
	if err != nil {
		slog.Error("latest: list samples failed", "station_key", key, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load samples")
		return
	}
	utils.WriteJSON(w, http.StatusOK, latest)
}

func (c *weatherControllerImpl) handleSamples(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station key")
		return
	}

	window, err := parseSamplesQuery(r, c.now())
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := c.reader.Samples(r.Context(), repository.SampleQuery{
		StationKey: key,
		From:       window.From,
		To:         window.To,
		Limit:      window.Limit,
	})
	if err != nil {
		slog.Error("samples: list failed", "station_key", key, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load samples")
		return
	}
	utils.WriteJSON(w, http.StatusOK, samples)
}
