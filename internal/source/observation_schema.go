package source

import "weatherdash/internal/schema"

var observationSchema = schema.MustCompile("smhi-observation.json", `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["value", "position", "station"],
  "properties": {
    "value": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["date"],
        "properties": {
          "date": {"type": "integer", "minimum": 1},
          "value": {
            "anyOf": [
              {"type": "number"},
              {"type": "string", "pattern": "^-?[0-9]+(\\.[0-9]+)?$"},
              {"type": "null"}
            ]
          },
          "quality": {"type": "string"}
        }
      }
    },
    "position": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["latitude", "longitude"],
        "properties": {
          "latitude": {"type": "number", "minimum": -90, "maximum": 90},
          "longitude": {"type": "number", "minimum": -180, "maximum": 180},
          "height": {"type": "number"}
        }
      }
    },
    "station": {
      "type": "object",
      "required": ["key"],
      "properties": {
        "key": {"type": "string", "minLength": 1},
        "name": {"type": "string"}
      }
    }
  }
}`)
