package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaValidator validates one phase's model output against its compiled
// JSON Schema. Grounded on internal/engine.StructuredValidator's
// (internal/engine/structured.go), generalized from a single hand-rolled
// agent response shape to any of the eight phase schemas.
type schemaValidator struct {
	schema *jsonschema.Schema
}

func newSchemaValidator(schemaJSON json.RawMessage) (*schemaValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schemaJSON)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &schemaValidator{schema: schema}, nil
}

// validationError describes why a model response failed schema validation;
// callers feed Error() back into a retry prompt.
type validationError struct {
	message string
}

func (e *validationError) Error() string { return e.message }

// extract finds a JSON object or array in raw model text and validates it,
// returning the extracted JSON on success.
func (v *schemaValidator) extract(text string) (json.RawMessage, error) {
	candidate := extractJSON(text)
	if candidate == "" {
		return nil, &validationError{message: "response does not contain valid JSON"}
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(candidate))
	if err != nil {
		return nil, &validationError{message: fmt.Sprintf("invalid JSON: %s", err)}
	}
	if err := v.schema.Validate(parsed); err != nil {
		return nil, &validationError{message: fmt.Sprintf("schema validation failed: %s", err)}
	}
	return json.RawMessage(candidate), nil
}

// extractJSON finds a JSON object or array embedded in free model text:
// fenced ```json blocks first, then a generic fenced block, then the first
// balanced {...}/[...] span.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		start := idx + len("```json")
		if start < len(text) && text[start] == '\n' {
			start++
		}
		if end := strings.Index(text[start:], "```"); end >= 0 {
			if candidate := strings.TrimSpace(text[start : start+end]); candidate != "" {
				return candidate
			}
		}
	}

	if idx := strings.Index(text, "```\n"); idx >= 0 {
		start := idx + len("```\n")
		if end := strings.Index(text[start:], "```"); end >= 0 {
			if candidate := strings.TrimSpace(text[start : start+end]); isJSON(candidate) {
				return candidate
			}
		}
	}

	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			if candidate := extractBalanced(text[i:]); candidate != "" && isJSON(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func isJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}

func extractBalanced(s string) string {
	if len(s) == 0 {
		return ""
	}
	open := s[0]
	var closeCh byte
	switch open {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == open {
			depth++
		} else if ch == closeCh {
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
