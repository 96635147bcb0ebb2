// Package types holds the records exchanged between the ingestion pipeline,
// the data API and the live sync client. Timestamps are unix seconds.
package types

import (
	"strconv"
	"time"
)

// WeatherSample is one observation from a weather station. Identity is
// (StationKey, Timestamp); it is never updated after it has been committed.
type WeatherSample struct {
	StationKey  string   `json:"stationKey"`
	Timestamp   int64    `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Quality     *string  `json:"quality"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Height      *float64 `json:"height"`
	StationName *string  `json:"stationName"`
	Owner       string   `json:"owner"`
}

func (s WeatherSample) Key() SampleKey {
	return SampleKey{StationKey: s.StationKey, Timestamp: s.Timestamp}
}

func (s WeatherSample) Time() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

type SampleKey struct {
	StationKey string `json:"stationKey"`
	Timestamp  int64  `json:"timestamp"`
}

func (k SampleKey) String() string {
	return k.StationKey + "#" + strconv.FormatInt(k.Timestamp, 10)
}

// WeatherStation defines the ownership domain of the samples recorded for it.
type WeatherStation struct {
	StationKey string `json:"stationKey"`
	Owner      string `json:"owner"`
}

type Device struct {
	DeviceID string  `json:"device_id"`
	Owner    string  `json:"owner"`
	Status   *string `json:"status"`
}

// Telemetry is one device reading. Identity is (DeviceID, Timestamp).
type Telemetry struct {
	DeviceID    string   `json:"device_id"`
	Timestamp   int64    `json:"timestamp"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Owner       string   `json:"owner"`
}

func (t Telemetry) Key() TelemetryKey {
	return TelemetryKey{DeviceID: t.DeviceID, Timestamp: t.Timestamp}
}

type TelemetryKey struct {
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"`
}

func (k TelemetryKey) String() string {
	return k.DeviceID + "#" + strconv.FormatInt(k.Timestamp, 10)
}

func Float(v float64) *float64 { return &v }

func String(v string) *string { return &v }
