package tools

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"imagent/pkg/llm"

	"github.com/mitchellh/mapstructure"
)

// ParseArguments decodes the raw JSON arguments of a tool call. An empty
// string means no arguments.
func ParseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// Validate checks args against the tool schema: required fields, primitive
// types and enum membership. Unknown fields are ignored, and so is a null
// optional field.
func Validate(t llm.Tool, args map[string]any) error {
	required := t.RequiredParameters()
	for _, field := range required {
		if _, exists := args[field]; !exists {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	props := t.Parameters()
	for key, value := range args {
		// null counts as omitted for optional fields
		if value == nil && !slices.Contains(required, key) {
			continue
		}
		def, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		if expected, _ := def["type"].(string); expected != "" {
			if err := validateType(value, expected); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
		}
		if enum, ok := def["enum"].([]string); ok {
			// an empty string counts as omitted
			if s, _ := value.(string); s != "" && !slices.Contains(enum, s) {
				return fmt.Errorf("field %s: %q is not one of %s", key, s, strings.Join(enum, ", "))
			}
		}
	}
	return nil
}

func validateType(value any, expected string) error {
	switch expected {
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number":
		if _, ok := value.(float64); ok {
			return nil
		}
	case "integer":
		if f, ok := value.(float64); ok && math.Trunc(f) == f {
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "object":
		if _, ok := value.(map[string]any); ok {
			return nil
		}
	case "array":
		if _, ok := value.([]any); ok {
			return nil
		}
	default:
		return fmt.Errorf("unsupported schema type %q", expected)
	}
	return fmt.Errorf("expected %s but got %T", expected, value)
}

// decodeArgs copies validated arguments into a typed struct using its json tags.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
