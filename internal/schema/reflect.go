package schema

import (
	"reflect"
	"strconv"
	"strings"
)

// FromStruct derives a parameter schema from a Go struct. Exported fields
// become properties named after their json tag; non-pointer fields without
// omitempty become required. Constraint tags map onto the keywords Validate
// enforces, so a handler's argument struct carries its own validation:
//
//	type convertArgs struct {
//		Amount float64 `json:"amount" description:"Amount to convert" minimum:"0.01"`
//		Code   string  `json:"code" minLength:"3" maxLength:"3"`
//		Mode   string  `json:"mode,omitempty" enum:"spot,indicative"`
//	}
func FromStruct(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	properties := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, optional, skip := propertyName(field)
		if skip {
			continue
		}
		properties[name] = propertySchema(field)
		if !optional {
			required = append(required, name)
		}
	}

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// propertyName resolves the property name from the json tag and reports
// whether the field is optional (pointer or omitempty) or skipped entirely.
func propertyName(field reflect.StructField) (name string, optional, skip bool) {
	if !field.IsExported() {
		return "", false, true
	}
	name = field.Name
	parts := strings.Split(field.Tag.Get("json"), ",")
	if parts[0] == "-" {
		return "", false, true
	}
	if parts[0] != "" {
		name = parts[0]
	}
	optional = field.Type.Kind() == reflect.Ptr
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "omitempty" {
			optional = true
		}
	}
	return name, optional, false
}

// Numeric constraint tags copied verbatim into the property schema.
var numericKeywords = []string{"minimum", "maximum", "minLength", "maxLength"}

// propertySchema builds one property from the field's type, description and
// constraint tags.
func propertySchema(field reflect.StructField) map[string]any {
	prop := map[string]any{"type": jsonType(field.Type)}
	if d := field.Tag.Get("description"); d != "" {
		prop["description"] = d
	}
	for _, keyword := range numericKeywords {
		raw, ok := field.Tag.Lookup(keyword)
		if !ok {
			continue
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			prop[keyword] = n
		}
	}
	if raw, ok := field.Tag.Lookup("enum"); ok && raw != "" {
		values := strings.Split(raw, ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		prop["enum"] = values
	}
	return prop
}

// jsonType maps a Go type onto its JSON schema type.
func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return jsonType(t.Elem())
	default:
		return "string"
	}
}
