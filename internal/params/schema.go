package params

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

const schemaJSON = `{
  "type": "object",
  "required": ["dataset_ids"],
  "properties": {
    "dataset_ids": {
      "type": "array",
      "items": {"type": "integer", "minimum": 1}
    },
    "start_date": {"type": "string", "nullable": true},
    "end_date": {"type": "string", "nullable": true},
    "reference_area": {"type": "object", "nullable": true},
    "cell_touches": {"type": "boolean", "nullable": true}
  }
}`

var (
	schemaOnce sync.Once
	schema     *openapi3.Schema
	schemaErr  error
)

func parameterSchema() (*openapi3.Schema, error) {
	schemaOnce.Do(func() {
		var s openapi3.Schema
		if err := json.Unmarshal([]byte(schemaJSON), &s); err != nil {
			schemaErr = fmt.Errorf("decode parameter schema: %w", err)
			return
		}
		schema = &s
	})
	return schema, schemaErr
}

// validateSchema checks a JSON-decoded parameter object.
func validateSchema(doc any) error {
	s, err := parameterSchema()
	if err != nil {
		return err
	}
	if err := s.VisitJSON(doc, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
