// Package livesync keeps an in-memory copy of one store collection current by
// merging the change stream into an initial list query. Consumers receive
// whole snapshots on a channel and never observe a half-applied change.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"weatherdash/internal/changefeed"
	"weatherdash/internal/dataapi"
)

type State int32

const (
	Disconnected State = iota
	Subscribing
	Synced
	Reconciling
)

func (s State) String() string {
	switch s {
	case Subscribing:
		return "subscribing"
	case Synced:
		return "synced"
	case Reconciling:
		return "reconciling"
	default:
		return "disconnected"
	}
}

// changeBuffer holds changes that arrive while the list query is running.
const changeBuffer = 256

const maxMessageBytes = 1 << 20

type Options struct {
	// Endpoint is the data API URL, e.g. http://localhost:8080/graphql.
	Endpoint string
	// StreamURL is the change stream base. Defaults to Endpoint with a ws
	// scheme and /graphql replaced by /sync.
	StreamURL  string
	APIKey     string
	HTTPClient *http.Client
	// ListVars are passed to the model's list operation.
	ListVars map[string]any
	Logger   *slog.Logger
}

type Subscription[T any] struct {
	model  Model[T]
	logger *slog.Logger
	state  atomic.Int32

	snapshots chan []T
	cancel    context.CancelFunc
	done      chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe opens the change stream for model, then loads the full list, then
// applies whatever changed in between, and returns once the first snapshot is
// available. The subscription ends when ctx is cancelled, Close is called or
// the stream is lost; Snapshots is closed in every case.
func Subscribe[T any](ctx context.Context, opts Options, model Model[T]) (*Subscription[T], error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	streamURL, err := streamURLFor(opts, model.Name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		model:     model,
		logger:    logger.With("model", model.Name),
		snapshots: make(chan []T, 1),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.state.Store(int32(Subscribing))

	conn, _, err := websocket.Dial(ctx, streamURL, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: http.Header{dataapi.APIKeyHeader: []string{opts.APIKey}},
	})
	if err != nil {
		cancel()
		s.state.Store(int32(Disconnected))
		return nil, fmt.Errorf("open %s stream: %w", model.Name, err)
	}
	conn.SetReadLimit(maxMessageBytes)

	changes := make(chan changefeed.Change, changeBuffer)
	go s.read(ctx, conn, changes)

	items, err := list(ctx, opts, model)
	if err != nil {
		cancel()
		conn.CloseNow()
		s.state.Store(int32(Disconnected))
		return nil, err
	}

	coll := NewCollection(model.Key, items)
	s.drainBuffered(coll, changes)
	s.publish(coll)
	s.state.Store(int32(Synced))
	s.logger.Info("live sync synced", "items", coll.Len())

	go s.loop(conn, coll, changes)
	return s, nil
}

// Snapshots delivers the latest committed snapshot. Unread snapshots are
// replaced by newer ones.
func (s *Subscription[T]) Snapshots() <-chan []T { return s.snapshots }

func (s *Subscription[T]) State() State { return State(s.state.Load()) }

// Err reports why the stream ended. It is nil while running and after a
// cancellation or Close.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes and waits for the subscription to stop.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

// Done is closed once the subscription has stopped.
func (s *Subscription[T]) Done() <-chan struct{} { return s.done }

func (s *Subscription[T]) read(ctx context.Context, conn *websocket.Conn, changes chan<- changefeed.Change) {
	defer close(changes)
	for {
		var c changefeed.Change
		if err := wsjson.Read(ctx, conn, &c); err != nil {
			if ctx.Err() == nil {
				s.setErr(fmt.Errorf("%s stream lost: %w", s.model.Name, err))
			}
			return
		}
		if c.Model != s.model.Name {
			continue
		}
		select {
		case changes <- c:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription[T]) loop(conn *websocket.Conn, coll *Collection[T], changes <-chan changefeed.Change) {
	defer close(s.done)
	defer close(s.snapshots)
	defer s.state.Store(int32(Disconnected))
	defer conn.Close(websocket.StatusNormalClosure, "")

	for c := range changes {
		s.state.Store(int32(Reconciling))
		s.apply(coll, c)
		s.state.Store(int32(Synced))
	}
	if err := s.Err(); err != nil {
		s.logger.Warn("live sync stopped", "error", err)
		return
	}
	s.logger.Info("live sync stopped")
}

func (s *Subscription[T]) drainBuffered(coll *Collection[T], changes <-chan changefeed.Change) {
	for {
		select {
		case c, ok := <-changes:
			if !ok {
				return
			}
			if _, err := coll.Apply(c); err != nil {
				s.logger.Warn("skipping undecodable change", "seq", c.Seq, "error", err)
			}
		default:
			return
		}
	}
}

func (s *Subscription[T]) apply(coll *Collection[T], c changefeed.Change) {
	changed, err := coll.Apply(c)
	if err != nil {
		s.logger.Warn("skipping undecodable change", "seq", c.Seq, "error", err)
		return
	}
	if changed {
		s.publish(coll)
	}
}

// publish replaces any unread snapshot. Only the owning goroutine sends, so
// the send after the drain cannot block.
func (s *Subscription[T]) publish(coll *Collection[T]) {
	snap := coll.Snapshot()
	select {
	case <-s.snapshots:
	default:
	}
	s.snapshots <- snap
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func list[T any](ctx context.Context, opts Options, model Model[T]) ([]T, error) {
	client := dataapi.NewClient(dataapi.ClientOptions{
		Endpoint:   opts.Endpoint,
		APIKey:     opts.APIKey,
		HTTPClient: opts.HTTPClient,
	})
	resp, err := client.Execute(ctx, model.List, opts.ListVars)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", model.Name, err)
	}
	var page dataapi.Page[T]
	if _, err := resp.Field(model.List.Field, &page); err != nil {
		return nil, fmt.Errorf("list %s: %w", model.Name, err)
	}
	return page.Items, nil
}

func streamURLFor(opts Options, model string) (string, error) {
	base := strings.TrimRight(opts.StreamURL, "/")
	if base == "" {
		u, err := url.Parse(opts.Endpoint)
		if err != nil || u.Host == "" {
			return "", errors.New("livesync: a data API endpoint or stream URL is required")
		}
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/graphql") + "/sync"
		u.RawQuery = ""
		base = u.String()
	}
	return base + "/" + url.PathEscape(model), nil
}
