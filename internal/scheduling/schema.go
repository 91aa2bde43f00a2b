package scheduling

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const blockSchemaURL = "mem://dayplan/schedule-block.json"

const blockSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["start_time", "duration"],
  "properties": {
    "type": {"type": "string"},
    "name": {"type": "string"},
    "label": {"type": "string"},
    "start_time": {
      "type": "string",
      "pattern": "^\\s*([01]?[0-9]|2[0-3]):[0-5][0-9](:[0-5][0-9])?\\s*$"
    },
    "duration": {
      "anyOf": [
        {"type": "number", "maximum": 1440},
        {"type": "string", "pattern": "^\\s*-?[0-9]+(\\.[0-9]+)?\\s*$"}
      ]
    }
  }
}`

var blockSchema = compileBlockSchema()

func compileBlockSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(blockSchemaURL, strings.NewReader(blockSchemaJSON)); err != nil {
		panic("scheduling: add block schema: " + err.Error())
	}
	return compiler.MustCompile(blockSchemaURL)
}

// validateItem checks one decoded reply element against the block schema.
func validateItem(item any) error {
	return blockSchema.Validate(item)
}
