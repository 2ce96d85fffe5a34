package session

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// compiledSchema compiles the embedded session schema once.
func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		schema, schemaErr = compiler.Compile(schemaJSON)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile session schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// validateSessionJSON checks raw session bytes against the embedded schema.
func validateSessionJSON(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	result := s.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
