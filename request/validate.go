package request

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationResult is the outcome of Validate. A failed validation is a
// value, never a panic.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Validate checks instance against Schema. In strict mode every required
// field must be present and non-nil. Unknown fields are ignored.
func Validate(instance Fields, strict bool) ValidationResult {
	errs := make([]string, 0)

	if strict {
		for _, spec := range Schema {
			if !spec.Required {
				continue
			}
			if v, ok := instance[spec.Name]; !ok || v == nil {
				errs = append(errs, "Missing required field: "+spec.Name)
			}
		}
	}

	for _, spec := range Schema {
		value, ok := instance[spec.Name]
		if !ok {
			continue
		}
		errs = append(errs, checkField(spec, value)...)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Validate validates the plain form of the request.
func (r *Request) Validate(strict bool) ValidationResult {
	return Validate(r.Fields(), strict)
}

func checkField(spec FieldSpec, value interface{}) []string {
	var errs []string
	name := spec.Name

	if !kindMatches(spec.Kind, value) {
		errs = append(errs, fmt.Sprintf("Field %s should be %s", name, article(spec.Kind)))
	}

	if len(spec.Enum) > 0 {
		s, isString := value.(string)
		if !isString || !contains(spec.Enum, s) {
			errs = append(errs, fmt.Sprintf("Field %s should be one of: %s", name, strings.Join(spec.Enum, ", ")))
		}
	}

	if s, isString := value.(string); isString && spec.Kind == KindString && spec.MaxLength > 0 {
		if utf8.RuneCountInString(s) > spec.MaxLength {
			errs = append(errs, fmt.Sprintf("Field %s exceeds maximum length of %d", name, spec.MaxLength))
		}
	}

	if n, isNumber := toFloat(value); isNumber && (spec.Kind == KindNumber || spec.Kind == KindInteger) {
		if spec.Min != nil && n < *spec.Min {
			errs = append(errs, fmt.Sprintf("Field %s should be at least %s", name, formatNumber(*spec.Min)))
		}
		if spec.Max != nil && n > *spec.Max {
			errs = append(errs, fmt.Sprintf("Field %s should be at most %s", name, formatNumber(*spec.Max)))
		}
	}

	if spec.Kind == KindObject && len(spec.Properties) > 0 {
		if obj, isObject := asObject(value); isObject {
			for _, prop := range spec.Properties {
				if !prop.Required {
					continue
				}
				if v, ok := obj[prop.Name]; !ok || v == nil {
					errs = append(errs, fmt.Sprintf("Missing required nested field: %s.%s", name, prop.Name))
				}
			}
		}
	}

	return errs
}

func kindMatches(kind Kind, value interface{}) bool {
	if value == nil {
		return false
	}
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		_, ok := toFloat(value)
		return ok
	case KindInteger:
		n, ok := toFloat(value)
		return ok && n == float64(int64(n))
	case KindTimestamp:
		switch v := value.(type) {
		case time.Time, *time.Time:
			return true
		case string:
			_, err := time.Parse(time.RFC3339, v)
			return err == nil
		}
		return false
	case KindArray:
		switch value.(type) {
		case []interface{}, []string, []CustodyEntry, []map[string]interface{}:
			return true
		}
		return false
	case KindObject:
		_, ok := asObject(value)
		if ok {
			return true
		}
		switch value.(type) {
		case Coordinates, *Coordinates, Impact, *Impact, TimeWindow, *TimeWindow:
			return true
		}
		return false
	}
	return true
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func asObject(value interface{}) (map[string]interface{}, bool) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, true
	case Fields:
		return v, true
	case map[string]float64:
		out := make(map[string]interface{}, len(v))
		for k, n := range v {
			out[k] = n
		}
		return out, true
	}
	return nil, false
}

func article(kind Kind) string {
	switch kind[0] {
	case 'a', 'e', 'i', 'o', 'u':
		return "an " + string(kind)
	}
	return "a " + string(kind)
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
