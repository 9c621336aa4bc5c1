package runner

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// validatePayloadSchema checks the trigger payload against a step's JSON
// schema. A schema violation is terminal: retrying the same payload can never
// succeed.
func validatePayloadSchema(payload, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var violations []string
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return fmt.Errorf("payload schema validation failed: %s", strings.Join(violations, "; "))
	}

	return nil
}
