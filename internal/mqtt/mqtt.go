// Package mqtt receives device telemetry pushes from a broker and hands each
// payload to the telemetry pipeline.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"weatherdash/internal/config"
)

// TelemetryHandler processes one normalized device push. The returned error
// is logged; the message is acknowledged either way.
type TelemetryHandler func(ctx context.Context, body []byte) error

type Subscriber struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	handlerTimeout time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once

	handler TelemetryHandler
}

func NewSubscriber(cfg config.Config, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Subscriber{
		cfg:            cfg,
		logger:         logger,
		handlerTimeout: cfg.IngestTimeout,
		stopCh:         make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Resubscribe on every (re)connect; the session is clean.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		if err := s.subscribe(c); err != nil {
			logger.Error("mqtt subscribe failed", "topic", cfg.MQTTTopic, "error", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// SetTelemetryHandler must be called before Connect so that messages queued by
// the broker right after CONNACK are not dropped.
func (s *Subscriber) SetTelemetryHandler(h TelemetryHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Connect dials the broker and waits until the first connection attempt
// completes, ctx is done or the subscriber is stopped.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return fmt.Errorf("subscriber stopped")
	default:
	}
	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()
	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("subscriber stopped")
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (s *Subscriber) subscribe(c mqtt.Client) error {
	topic := s.cfg.MQTTTopic
	qos := byte(1)
	token := c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	s.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	body, err := normalizePayload(topic, payload)
	if err != nil {
		s.logger.Warn("invalid telemetry message", "topic", topic, "error", err)
		return
	}

	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h == nil {
		s.logger.Warn("no telemetry handler set, dropping message", "topic", topic)
		return
	}

	ctx, cancel := s.handlerContext()
	defer cancel()
	if err := h(ctx, body); err != nil {
		s.logger.Error("telemetry handler failed", "topic", topic, "error", err)
		return
	}
	s.logger.Debug("processed telemetry message", "topic", topic)
}

// handlerContext is cancelled on Disconnect so an in-flight invocation stops
// before its commit.
func (s *Subscriber) handlerContext() (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if s.handlerTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.handlerTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// normalizePayload fills device_id from a devices/{id}/... topic when the
// payload omits it and rejects payloads naming a different device.
func normalizePayload(topic string, payload []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("payload is not an object")
	}

	topicDevice := deviceFromTopic(topic)
	raw, ok := fields["device_id"]
	if !ok || string(raw) == "null" {
		if topicDevice == "" {
			return nil, fmt.Errorf("device_id is required")
		}
		encoded, err := json.Marshal(topicDevice)
		if err != nil {
			return nil, err
		}
		fields["device_id"] = encoded
		return json.Marshal(fields)
	}

	var deviceID string
	if err := json.Unmarshal(raw, &deviceID); err != nil {
		return nil, fmt.Errorf("device_id must be a string")
	}
	if topicDevice != "" && deviceID != topicDevice {
		return nil, fmt.Errorf("payload device %q does not match topic device %q", deviceID, topicDevice)
	}
	return payload, nil
}

func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 && parts[0] == "devices" {
		return parts[1]
	}
	return ""
}

func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the connection. It is safe to
// call more than once.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.client != nil && s.IsConnected() {
		token := s.client.Unsubscribe(s.cfg.MQTTTopic)
		token.WaitTimeout(2 * time.Second)
	}
	if s.client != nil {
		s.client.Disconnect(250)
	}
	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
