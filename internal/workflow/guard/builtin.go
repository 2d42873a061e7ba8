package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// NewBuiltinRegistry returns a registry with every built-in guard kind
// registered.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	builtins := map[string]Factory{
		"field_equals":     newFieldEquals,
		"field_not_equals": newFieldNotEquals,
		"field_in":         newFieldIn,
		"field_contains":   newFieldContains,
		"field_matches":    newFieldMatches,
		"field_compare":    newFieldCompare,
		"field_present":    newFieldPresent,
		"metadata_flag":    newMetadataFlag,
	}
	for kind, factory := range builtins {
		if err := r.Register(kind, factory); err != nil {
			panic(err)
		}
	}
	return r
}

type checkFunc func(ctx context.Context, in Input) (bool, string)

func (f checkFunc) Check(ctx context.Context, in Input) (bool, string) { return f(ctx, in) }

func newFieldEquals(params map[string]any) (Guard, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	target, err := stringParam(params, "value")
	if err != nil {
		return nil, err
	}
	message := messageParam(params, fmt.Sprintf("field %q must equal %q", field, target))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveField(in, field)
		if !ok || !compareEqual(value, target) {
			return false, message
		}
		return true, ""
	}), nil
}

func newFieldNotEquals(params map[string]any) (Guard, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	target, err := stringParam(params, "value")
	if err != nil {
		return nil, err
	}
	message := messageParam(params, fmt.Sprintf("field %q must not equal %q", field, target))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveField(in, field)
		if ok && compareEqual(value, target) {
			return false, message
		}
		return true, ""
	}), nil
}

func newFieldIn(params map[string]any) (Guard, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	targets, err := stringListParam(params, "values")
	if err != nil {
		return nil, err
	}
	message := messageParam(params, fmt.Sprintf("field %q must be one of %s", field, strings.Join(targets, ", ")))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveField(in, field)
		if !ok || !compareIn(value, targets) {
			return false, message
		}
		return true, ""
	}), nil
}

func newFieldContains(params map[string]any) (Guard, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	target, err := stringParam(params, "value")
	if err != nil {
		return nil, err
	}
	message := messageParam(params, fmt.Sprintf("field %q must contain %q", field, target))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveField(in, field)
		if !ok || !compareContains(value, target) {
			return false, message
		}
		return true, ""
	}), nil
}

func newFieldMatches(params map[string]any) (Guard, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	pattern, err := stringParam(params, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("guard field_matches: invalid pattern: %w", err)
	}
	message := messageParam(params, fmt.Sprintf("field %q must match %s", field, pattern))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveField(in, field)
		if !ok || !compareRegex(value, re) {
			return false, message
		}
		return true, ""
	}), nil
}

func newFieldCompare(params map[string]any) (Guard, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	op, err := stringParam(params, "op")
	if err != nil {
		return nil, err
	}
	op = strings.ToLower(strings.TrimSpace(op))
	switch op {
	case "gt", "gte", "lt", "lte", "eq":
	default:
		return nil, fmt.Errorf("guard field_compare: op must be one of gt, gte, lt, lte, eq (got %q)", op)
	}
	raw, ok := params["value"]
	if !ok {
		return nil, fmt.Errorf("guard param %q is required", "value")
	}
	target, ok := toFloat64(raw)
	if !ok {
		return nil, fmt.Errorf("guard field_compare: value %v is not numeric", raw)
	}
	message := messageParam(params, fmt.Sprintf("field %q must be %s %v", field, op, raw))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveField(in, field)
		if !ok || !compareNumber(value, target, op) {
			return false, message
		}
		return true, ""
	}), nil
}

func newFieldPresent(params map[string]any) (Guard, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, err
	}
	message := messageParam(params, fmt.Sprintf("field %q is required", field))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveField(in, field)
		if !ok {
			return false, message
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return false, message
		}
		return true, ""
	}), nil
}

func newMetadataFlag(params map[string]any) (Guard, error) {
	key, err := stringParam(params, "key")
	if err != nil {
		return nil, err
	}
	message := messageParam(params, fmt.Sprintf("metadata flag %q must be set", key))
	return checkFunc(func(ctx context.Context, in Input) (bool, string) {
		value, ok := resolveMapPath(map[string]any(in.EntityState.Metadata), key)
		if !ok {
			return false, message
		}
		switch typed := value.(type) {
		case bool:
			if typed {
				return true, ""
			}
		case string:
			if normalizeString(typed) == "true" {
				return true, ""
			}
		}
		return false, message
	}), nil
}

func stringParam(params map[string]any, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", fmt.Errorf("guard param %q is required", name)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("guard param %q must be a non-empty string", name)
	}
	return strings.TrimSpace(s), nil
}

func stringListParam(params map[string]any, name string) ([]string, error) {
	raw, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("guard param %q is required", name)
	}
	var out []string
	switch typed := raw.(type) {
	case []string:
		out = typed
	case []any:
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("guard param %q must be a list of strings", name)
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("guard param %q must be a list of strings", name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("guard param %q must be non-empty", name)
	}
	return out, nil
}

func messageParam(params map[string]any, fallback string) string {
	if raw, ok := params["message"]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return fallback
}
