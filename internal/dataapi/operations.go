package dataapi

// Operation is a named document. Field is the root field its data lives under.
type Operation struct {
	Name     string
	Field    string
	Document string
}

const sampleFields = `stationKey timestamp temperature quality latitude longitude height stationName owner`

var (
	GetWeatherStationData = Operation{
		Name:  "GetWeatherStationData",
		Field: "getWeatherStationData",
		Document: `query GetWeatherStationData($stationKey: String!, $timestamp: AWSTimestamp!) {
  getWeatherStationData(stationKey: $stationKey, timestamp: $timestamp) { stationKey timestamp }
}`,
	}
	CreateWeatherStationData = Operation{
		Name:  "CreateWeatherStationData",
		Field: "createWeatherStationData",
		Document: `mutation CreateWeatherStationData($input: CreateWeatherStationDataInput!) {
  createWeatherStationData(input: $input) { ` + sampleFields + ` }
}`,
	}
	ListWeatherStationData = Operation{
		Name:  "ListWeatherStationData",
		Field: "listWeatherStationData",
		Document: `query ListWeatherStationData($stationKey: String, $limit: Int) {
  listWeatherStationData(stationKey: $stationKey, limit: $limit) { items { ` + sampleFields + ` } }
}`,
	}
	DeleteWeatherStationData = Operation{
		Name:  "DeleteWeatherStationData",
		Field: "deleteWeatherStationData",
		Document: `mutation DeleteWeatherStationData($input: DeleteWeatherStationDataInput!) {
  deleteWeatherStationData(input: $input) { ` + sampleFields + ` }
}`,
	}

	GetWeatherStation = Operation{
		Name:  "GetWeatherStation",
		Field: "getWeatherStation",
		Document: `query GetWeatherStation($stationKey: String!) {
  getWeatherStation(stationKey: $stationKey) { stationKey owner }
}`,
	}
	CreateWeatherStation = Operation{
		Name:  "CreateWeatherStation",
		Field: "createWeatherStation",
		Document: `mutation CreateWeatherStation($input: CreateWeatherStationInput!) {
  createWeatherStation(input: $input) { stationKey owner }
}`,
	}
	ListWeatherStations = Operation{
		Name:  "ListWeatherStations",
		Field: "listWeatherStations",
		Document: `query ListWeatherStations {
  listWeatherStations { items { stationKey owner } }
}`,
	}

	GetDevices = Operation{
		Name:  "GetDevices",
		Field: "getDevices",
		Document: `query GetDevices($device_id: String!) {
  getDevices(device_id: $device_id) { device_id owner status }
}`,
	}
	CreateDevices = Operation{
		Name:  "CreateDevices",
		Field: "createDevices",
		Document: `mutation CreateDevices($input: CreateDevicesInput!) {
  createDevices(input: $input) { device_id owner status }
}`,
	}
	DeleteDevices = Operation{
		Name:  "DeleteDevices",
		Field: "deleteDevices",
		Document: `mutation DeleteDevices($input: DeleteDevicesInput!) {
  deleteDevices(input: $input) { device_id owner status }
}`,
	}
	UpdateDevices = Operation{
		Name:  "UpdateDevices",
		Field: "updateDevices",
		Document: `mutation UpdateDevices($input: UpdateDevicesInput!) {
  updateDevices(input: $input) { device_id owner status }
}`,
	}
	ListDevices = Operation{
		Name:  "ListDevices",
		Field: "listDevices",
		Document: `query ListDevices {
  listDevices { items { device_id owner status } }
}`,
	}

	GetTelemetry = Operation{
		Name:  "GetTelemetry",
		Field: "getTelemetry",
		Document: `query GetTelemetry($device_id: String!, $timestamp: AWSTimestamp!) {
  getTelemetry(device_id: $device_id, timestamp: $timestamp) { device_id timestamp }
}`,
	}
	CreateTelemetry = Operation{
		Name:  "CreateTelemetry",
		Field: "createTelemetry",
		Document: `mutation CreateTelemetry($input: CreateTelemetryInput!) {
  createTelemetry(input: $input) { device_id timestamp temperature humidity owner }
}`,
	}
	DeleteTelemetry = Operation{
		Name:  "DeleteTelemetry",
		Field: "deleteTelemetry",
		Document: `mutation DeleteTelemetry($input: DeleteTelemetryInput!) {
  deleteTelemetry(input: $input) { device_id timestamp temperature humidity owner }
}`,
	}
	ListTelemetry = Operation{
		Name:  "ListTelemetry",
		Field: "listTelemetry",
		Document: `query ListTelemetry($device_id: String, $limit: Int) {
  listTelemetry(device_id: $device_id, limit: $limit) { items { device_id timestamp temperature humidity owner } }
}`,
	}
)

// Page is the list envelope every list operation returns.
type Page[T any] struct {
	Items []T `json:"items"`
}
