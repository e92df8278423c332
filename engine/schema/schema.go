package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// -----------------------------------------------------------------------------
// Schema
// -----------------------------------------------------------------------------

// Schema is a JSON Schema document kept in its decoded map form so it can be
// embedded directly in task and workflow definitions.
type Schema map[string]any

// FieldError is one field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Field == "" {
		return f.Message
	}
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

func (s *Schema) String() string {
	raw, err := json.Marshal(s)
	if err != nil {
		return ""
	}
	return string(raw)
}

func (s *Schema) Compile() (*jsonschema.Schema, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	compiled, err := compiler.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return compiled, nil
}

// Validate checks data against the schema. A nil schema accepts everything.
// The returned error is reserved for schema compilation failures; validation
// outcomes are reported through the bool and the field errors.
func (s *Schema) Validate(_ context.Context, data any) (bool, []FieldError, error) {
	compiled, err := s.Compile()
	if err != nil {
		return false, nil, err
	}
	if compiled == nil {
		return true, nil, nil
	}
	result := compiled.Validate(data)
	if result.IsValid() {
		return true, nil, nil
	}
	var fieldErrors []FieldError
	collectFieldErrors(result.ToList(), &fieldErrors)
	return false, fieldErrors, nil
}

func collectFieldErrors(list *jsonschema.List, out *[]FieldError) {
	if list == nil {
		return
	}
	for _, msg := range list.Errors {
		*out = append(*out, FieldError{Field: list.InstanceLocation, Message: msg})
	}
	for i := range list.Details {
		collectFieldErrors(&list.Details[i], out)
	}
}
