// Package schema implements the argument validation framework for tool
// dispatch. It checks a minimal JSON-Schema-like object schema: types,
// required fields, numeric ranges, enumerations and cross-field presence
// constraints. Validation stops at the first offending field so the error
// fed back to the model stays actionable.
package schema

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ValidationError reports the first offending field with its provided value.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Validate checks params against a JSON-Schema-like map:
//
//	{
//	  "type": "object",
//	  "properties": {"amount": {"type": "number", "minimum": 0}},
//	  "required": ["amount"],
//	  "dependentRequired": {"lat": ["lng"], "lng": ["lat"]},
//	}
//
// Supported property keywords: type, enum, minimum, maximum, minLength,
// maxLength. Extra parameters not named in properties are allowed.
//
// The first failure wins. Required fields are checked in their declared
// order; property checks run in sorted field-name order so the reported
// field is deterministic.
func Validate(params map[string]any, schema map[string]any) error {
	for _, fieldName := range requiredFields(schema) {
		if _, exists := params[fieldName]; !exists {
			return &ValidationError{Field: fieldName, Message: "required field is missing"}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for _, fieldName := range sortedKeys(params) {
		propMap, ok := properties[fieldName].(map[string]any)
		if !ok {
			continue
		}
		value := params[fieldName]
		if err := validateField(fieldName, value, propMap); err != nil {
			return err
		}
	}

	return validateDependents(params, schema)
}

func validateField(field string, value any, prop map[string]any) error {
	expectedType, _ := prop["type"].(string)
	if expectedType != "" && !isValidType(value, expectedType) {
		got := fmt.Sprintf("%T", value)
		if value == nil {
			got = "null"
		}
		return &ValidationError{
			Field:   field,
			Value:   value,
			Message: fmt.Sprintf("expected type %s, got %s", expectedType, got),
		}
	}

	if enum, ok := prop["enum"].([]any); ok {
		if err := validateEnum(field, value, enum); err != nil {
			return err
		}
	} else if enum, ok := prop["enum"].([]string); ok {
		generic := make([]any, len(enum))
		for i, s := range enum {
			generic[i] = s
		}
		if err := validateEnum(field, value, generic); err != nil {
			return err
		}
	}

	if num, ok := asFloat(value); ok {
		if min, exists := asSchemaNumber(prop["minimum"]); exists && num < min {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be >= %v", min)}
		}
		if max, exists := asSchemaNumber(prop["maximum"]); exists && num > max {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be <= %v", max)}
		}
	}

	if s, ok := value.(string); ok {
		if min, exists := asSchemaNumber(prop["minLength"]); exists && float64(len(s)) < min {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be at least %d characters", int(min))}
		}
		if max, exists := asSchemaNumber(prop["maxLength"]); exists && float64(len(s)) > max {
			return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be at most %d characters", int(max))}
		}
	}

	return nil
}

func validateEnum(field string, value any, enum []any) error {
	for _, allowed := range enum {
		if reflect.DeepEqual(value, allowed) {
			return nil
		}
	}
	names := make([]string, len(enum))
	for i, v := range enum {
		names[i] = fmt.Sprint(v)
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(names, ", ")),
	}
}

// validateDependents enforces cross-field presence: a present key requires
// every key it depends on ("both coordinates or neither" is expressed by
// mutual entries).
func validateDependents(params map[string]any, schema map[string]any) error {
	dependents, ok := schema["dependentRequired"].(map[string]any)
	if !ok {
		return nil
	}
	for _, field := range sortedKeys(dependents) {
		if _, present := params[field]; !present {
			continue
		}
		for _, dep := range toStringSlice(dependents[field]) {
			if _, present := params[dep]; !present {
				return &ValidationError{
					Field:   dep,
					Message: fmt.Sprintf("required when '%s' is provided", field),
				}
			}
		}
	}
	return nil
}

func requiredFields(schema map[string]any) []string {
	return toStringSlice(schema["required"])
}

// toStringSlice accepts []string or []any (the JSON-decoded shape).
func toStringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asSchemaNumber(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return asFloat(v)
}

// isValidType checks if a value is valid according to the expected JSON
// schema type.
func isValidType(value any, expectedType string) bool {
	// JSON null never satisfies a declared type; letting it through hands
	// the handler a nil where it expects a concrete value.
	if value == nil {
		return false
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}
