package draft

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Issue is one validation finding, surfaced as data rather than a fatal
// error so the caller decides how to present it.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the structured issue list returned by a failed
// finalize. The draft stays active when it is returned.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = fmt.Sprintf("%s: %s", issue.Field, issue.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks draft data against a JSON Schema form rule set.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the given JSON Schema document.
func NewValidator(schemaJSON []byte) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compiling form schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate returns the issues found in data, or nil when it conforms.
func (v *Validator) Validate(data map[string]any) ([]Issue, error) {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, fmt.Errorf("running form validation: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	issues := make([]Issue, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		issues = append(issues, Issue{Field: re.Field(), Message: re.Description()})
	}
	return issues, nil
}
