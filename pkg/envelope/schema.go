package envelope

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema is the structural contract for the JSON exchange form.
// Bounds checking beyond simple ranges stays in the verification pipeline;
// this schema guards shape and types at the parse boundary.
const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ver", "ctx", "intent", "trajectory", "aad", "commit"],
  "properties": {
    "ver": {"type": "string", "pattern": "^scbe-[0-9]+\\.[0-9]+"},
    "ctx": {
      "type": "object",
      "required": ["ts", "device_id", "threat_level", "entropy", "server_load", "stability"],
      "properties": {
        "ts": {"type": "integer"},
        "device_id": {"type": "string", "minLength": 1},
        "threat_level": {"type": "integer", "minimum": 1, "maximum": 5},
        "entropy": {"type": "number"},
        "server_load": {"type": "number"},
        "stability": {"type": "number"}
      }
    },
    "intent": {
      "type": "object",
      "required": ["primary", "modifier", "harmonic", "phase_deg"],
      "properties": {
        "primary": {"type": "string", "minLength": 1},
        "modifier": {"type": "string"},
        "harmonic": {"type": "integer", "minimum": 1, "maximum": 7},
        "phase_deg": {"type": "integer", "minimum": 0, "maximum": 359}
      }
    },
    "trajectory": {
      "type": "object",
      "required": ["epoch", "period_s", "slot_id", "waypoint"],
      "properties": {
        "epoch": {"type": "integer"},
        "period_s": {"type": "integer", "minimum": 1},
        "slot_id": {"type": "string"},
        "waypoint": {"type": "integer", "minimum": 0}
      }
    },
    "aad": {
      "type": "object",
      "required": ["route_hint", "run_id", "step_no"],
      "properties": {
        "route_hint": {"type": "string", "minLength": 1},
        "run_id": {"type": "string"},
        "step_no": {"type": "integer", "minimum": 0}
      }
    },
    "commit": {
      "type": "object",
      "required": ["ctx_sha256", "intent_sha256", "traj_sha256", "aad_sha256"],
      "properties": {
        "ctx_sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
        "intent_sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
        "traj_sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
        "aad_sha256": {"type": "string", "pattern": "^[0-9a-f]{64}$"}
      }
    },
    "crypto": {
      "type": ["object", "null"],
      "properties": {
        "kem": {"type": "string"},
        "sig": {"type": "string"},
        "salt_q_b64": {"type": "string"},
        "cipher_b64": {"type": "string"}
      }
    },
    "sig": {"type": ["object", "null"]}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://gate.schemas.local/envelope.schema.json"
	if err := c.AddResource(url, strings.NewReader(envelopeSchema)); err != nil {
		schemaErr = fmt.Errorf("envelope schema load failed: %w", err)
		return
	}
	compiledSchema, schemaErr = c.Compile(url)
}

// validateSchema checks a decoded JSON document against the envelope schema.
func validateSchema(doc any) error {
	schemaOnce.Do(compileSchema)
	if schemaErr != nil {
		return schemaErr
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
