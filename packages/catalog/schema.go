package catalog

// manifestSchema validates collected JSON manifests before any graph
// building happens. Kept permissive on unknown fields so front ends can
// attach extra metadata.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tests"],
  "properties": {
    "tests": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "name"],
        "properties": {
          "id": {"type": "string"},
          "path": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "module": {"type": "string"},
          "class": {"type": "string"},
          "fixtures": {"type": "array", "items": {"type": "string"}},
          "markers": {"type": "array", "items": {"type": "string"}},
          "params": {"type": "string"}
        }
      }
    },
    "fixtures": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "scope"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "scope": {"enum": ["function", "class", "module", "session"]},
          "autouse": {"type": "boolean"},
          "deps": {"type": "array", "items": {"type": "string"}},
          "path": {"type": "string"}
        }
      }
    }
  }
}`
