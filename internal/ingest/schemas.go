package ingest

import "weatherdash/internal/schema"

var weatherTriggerSchema = schema.MustCompile("weather-trigger.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "stationKey": {"type": "string", "minLength": 1, "maxLength": 32}
  }
}`)

// Timestamps are unix seconds; anything past 1e11 is almost certainly
// milliseconds and is rejected.
var telemetrySchema = schema.MustCompile("device-telemetry.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["device_id", "timestamp"],
  "properties": {
    "device_id": {"type": "string", "minLength": 1, "maxLength": 128},
    "timestamp": {"type": "integer", "minimum": 1, "maximum": 99999999999},
    "temperature": {"type": ["number", "null"]},
    "humidity": {"type": ["number", "null"], "minimum": 0, "maximum": 100}
  }
}`)
