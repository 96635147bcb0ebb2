package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/utils"
)

const syncWriteTimeout = 5 * time.Second

var syncModels = map[string]bool{
	changefeed.ModelWeatherStationData: true,
	changefeed.ModelWeatherStation:     true,
	changefeed.ModelDevices:            true,
	changefeed.ModelTelemetry:          true,
}

// Authorizer checks a data API key. *dataapi.Server implements it.
type Authorizer interface {
	Authorized(key string) bool
}

type syncHandler struct {
	auth   Authorizer
	hub    *changefeed.Hub
	logger *slog.Logger
}

// RegisterSync mounts the change stream at /sync/{model}. Browsers cannot set
// headers on a WebSocket handshake, so the key is also read from ?apiKey=.
func RegisterSync(mux *http.ServeMux, auth Authorizer, hub *changefeed.Hub, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &syncHandler{auth: auth, hub: hub, logger: logger}
	mux.HandleFunc("GET /sync/{model}", h.handleSync)
}

func (h *syncHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	if !syncModels[model] {
		utils.WriteError(w, http.StatusNotFound, "unknown model")
		return
	}
	key := r.Header.Get(dataapi.APIKeyHeader)
	if key == "" {
		key = r.URL.Query().Get("apiKey")
	}
	if !h.auth.Authorized(key) {
		utils.WriteError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	// Subscribe before the upgrade completes: a client treats the handshake as
	// the stream being open, so changes committed right after it must be queued.
	sub := h.hub.Subscribe(model)
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.logger.Warn("sync upgrade failed", "model", model, "error", err)
		return
	}
	defer conn.CloseNow()

	logger := h.logger.With("model", model, "subscriber", sub.ID)
	logger.Info("sync stream opened")

	// Clients only listen; CloseRead handles their close frame.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			logger.Info("sync stream closed by client")
			return
		case c, ok := <-sub.C:
			if !ok {
				logger.Warn("sync subscriber fell behind, closing stream")
				conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
				return
			}
			if err := writeChange(ctx, conn, c); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("sync write failed", "error", err)
				}
				return
			}
		}
	}
}

func writeChange(ctx context.Context, conn *websocket.Conn, c changefeed.Change) error {
	ctx, cancel := context.WithTimeout(ctx, syncWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, c)
}
