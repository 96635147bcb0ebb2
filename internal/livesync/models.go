package livesync

import (
	"weatherdash/internal/changefeed"
	"weatherdash/internal/dataapi"
	"weatherdash/internal/types"
)

// Model binds a record type to its change-feed name, its list operation and
// its identity key. The key must match the key the store publishes.
type Model[T any] struct {
	Name string
	List dataapi.Operation
	Key  func(T) string
}

var (
	WeatherStationData = Model[types.WeatherSample]{
		Name: changefeed.ModelWeatherStationData,
		List: dataapi.ListWeatherStationData,
		Key:  func(s types.WeatherSample) string { return s.Key().String() },
	}
	WeatherStations = Model[types.WeatherStation]{
		Name: changefeed.ModelWeatherStation,
		List: dataapi.ListWeatherStations,
		Key:  func(s types.WeatherStation) string { return s.StationKey },
	}
	Devices = Model[types.Device]{
		Name: changefeed.ModelDevices,
		List: dataapi.ListDevices,
		Key:  func(d types.Device) string { return d.DeviceID },
	}
	Telemetry = Model[types.Telemetry]{
		Name: changefeed.ModelTelemetry,
		List: dataapi.ListTelemetry,
		Key:  func(t types.Telemetry) string { return t.Key().String() },
	}
)
