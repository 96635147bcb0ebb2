// Package changefeed fans committed store changes out to per-model
// subscribers. Delivery is ordered per subscriber; nothing is ordered across
// models.
package changefeed

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Model names, shared by the data API and the live sync client.
const (
	ModelWeatherStationData = "weatherStationData"
	ModelWeatherStation     = "weatherStation"
	ModelDevices            = "devices"
	ModelTelemetry          = "telemetry"
)

// Change is one committed create, update or delete. Record is the full
// record (for deletes, as it was before removal).
type Change struct {
	Seq    uint64          `json:"seq"`
	Model  string          `json:"model"`
	Op     Op              `json:"op"`
	Key    string          `json:"key"`
	Record json.RawMessage `json:"record"`
}

const defaultBuffer = 64

type Hub struct {
	logger *slog.Logger
	buffer int

	mu   sync.Mutex
	seq  uint64
	subs map[string]map[uuid.UUID]*Subscription
}

func NewHub(logger *slog.Logger, buffer int) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{logger: logger, buffer: buffer, subs: make(map[string]map[uuid.UUID]*Subscription)}
}

// Subscription receives changes for one model on C. C is closed when the
// subscription is closed or when the subscriber fell too far behind.
type Subscription struct {
	ID    uuid.UUID
	Model string
	C     <-chan Change

	ch      chan Change
	hub     *Hub
	dropped bool
	once    sync.Once
}

func (h *Hub) Subscribe(model string) *Subscription {
	ch := make(chan Change, h.buffer)
	sub := &Subscription{ID: uuid.New(), Model: model, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	if h.subs[model] == nil {
		h.subs[model] = make(map[uuid.UUID]*Subscription)
	}
	h.subs[model][sub.ID] = sub
	h.mu.Unlock()

	h.logger.Debug("changefeed subscribed", "model", model, "subscriber", sub.ID)
	return sub
}

// Dropped reports whether the hub closed the subscription because its buffer
// was full. Only meaningful after C has been closed.
func (s *Subscription) Dropped() bool {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

func (h *Hub) removeLocked(s *Subscription) {
	if m := h.subs[s.Model]; m != nil {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(h.subs, s.Model)
		}
	}
	s.once.Do(func() { close(s.ch) })
}

// Publish records a change and hands it to every subscriber of model without
// blocking. A subscriber whose buffer is full is dropped; it has to resync.
func (h *Hub) Publish(model string, op Op, key string, record any) (Change, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Change{}, fmt.Errorf("encode %s change: %w", model, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	c := Change{Seq: h.seq, Model: model, Op: op, Key: key, Record: raw}
	for _, sub := range h.subs[model] {
		select {
		case sub.ch <- c:
		default:
			sub.dropped = true
			h.removeLocked(sub)
			h.logger.Warn("changefeed subscriber dropped (buffer full)", "model", model, "subscriber", sub.ID)
		}
	}
	return c, nil
}

// Subscribers returns the number of live subscribers for model.
func (h *Hub) Subscribers(model string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[model])
}
