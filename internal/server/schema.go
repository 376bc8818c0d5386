package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// submitSchema constrains submit_code frames before they reach the
// pipeline, so malformed payloads fail with a field-level message instead
// of a generic one.
const submitSchema = `{
	"type": "object",
	"properties": {
		"type": {"const": "submit_code"},
		"code": {"type": "string", "minLength": 1},
		"category": {"type": "string"},
		"language": {"type": "string"}
	},
	"required": ["type", "code"],
	"additionalProperties": false
}`

var submitSchemaLoader = gojsonschema.NewStringLoader(submitSchema)

func validateSubmitFrame(raw []byte) error {
	result, err := gojsonschema.Validate(submitSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.New("invalid submit_code frame: " + strings.Join(msgs, "; "))
	}
	return nil
}
