package llm

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const classificationSchema = `{
  "type": "object",
  "required": ["intent"],
  "properties": {
    "intent": {
      "enum": ["GET_SETPOINT", "GET_ROOM_TEMPERATURE", "GET_HUMIDITY", "GET_CONSUMPTION", "GET_RUN_HOURS", "FEEDBACK", "OTHER"]
    },
    "requiresAction": {"type": "boolean"},
    "action": {
      "type": ["object", "null"],
      "properties": {
        "power": {"type": ["string", "null"]},
        "setpointC": {"type": ["number", "null"]},
        "deltaC": {"type": ["number", "null"]}
      }
    }
  }
}`

func loadClassificationSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("classification.json", strings.NewReader(classificationSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("classification.json")
}
