// Package validation checks job variables against JSON schemas and struct
// tags before a handler touches them.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

// CompileSchema parses a JSON schema document.
func CompileSchema(schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(schemaJSON string) *Schema {
	s, err := CompileSchema(schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks doc, which may be any JSON-marshalable Go value. Structs
// are validated through their JSON form so json tags decide field names.
func (s *Schema) Validate(doc interface{}) *ValidationResult {
	var loader gojsonschema.JSONLoader
	switch d := doc.(type) {
	case map[string]interface{}:
		loader = gojsonschema.NewGoLoader(d)
	case []byte:
		loader = gojsonschema.NewBytesLoader(d)
	default:
		raw, err := json.Marshal(d)
		if err != nil {
			return invalid("(root)", "document is not JSON-encodable: "+err.Error(), "ENCODING")
		}
		loader = gojsonschema.NewBytesLoader(raw)
	}

	result, err := s.schema.Validate(loader)
	if err != nil {
		return invalid("(root)", err.Error(), "ENCODING")
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return vr
}

func invalid(field, msg, code string) *ValidationResult {
	return &ValidationResult{Errors: []ValidationError{{Field: field, Message: msg, Code: code}}}
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// ValidateStruct applies `validate` struct tags.
func ValidateStruct(v interface{}) *ValidationResult {
	structValidatorOnce.Do(func() {
		structValidator = validator.New()
	})

	err := structValidator.Struct(v)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return invalid("(root)", err.Error(), "INVALID")
	}

	vr := &ValidationResult{}
	for _, fe := range fieldErrs {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   fe.Namespace(),
			Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			Code:    strings.ToUpper(fe.Tag()),
		})
	}
	return vr
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return messages
}

// Error joins all messages, for wrapping into a StandardError.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
