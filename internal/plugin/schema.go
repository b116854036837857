package plugin

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ParamType is the type of a plugin parameter.
type ParamType string

// Parameter types.
const (
	ParamInt    ParamType = "int"
	ParamFloat  ParamType = "float"
	ParamString ParamType = "string"
	ParamChoice ParamType = "choice"
	ParamBool   ParamType = "bool"
)

// ParseParamType parses a parameter type. "str" is accepted for string.
func ParseParamType(s string) (ParamType, error) {
	switch t := ParamType(strings.ToLower(s)); t {
	case ParamInt, ParamFloat, ParamString, ParamChoice, ParamBool:
		return t, nil
	case "str":
		return ParamString, nil
	default:
		return "", fmt.Errorf("unknown parameter type %q", s)
	}
}

// Parameter describes one configurable input of a plugin.
type Parameter struct {
	Name    string
	Label   string
	Type    ParamType
	Default any
	Min     *float64 // int and float only
	Max     *float64
	Options []string // choice only
}

// Bound returns a pointer to v for Parameter.Min and Parameter.Max.
func Bound(v float64) *float64 { return &v }

// Schema is the ordered parameter list of a plugin.
type Schema struct {
	Parameters []Parameter
}

// Lookup returns the parameter named name.
func (s Schema) Lookup(name string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Defaults returns a Params holding each parameter's default value.
func (s Schema) Defaults() Params {
	out := make(Params, len(s.Parameters))
	for _, p := range s.Parameters {
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

// Resolve merges params over the defaults, coerces each value to its
// declared type and clamps numbers into [Min, Max]. Unknown choice values
// and uncoercible values are errors. Keys not in the schema pass through.
func (s Schema) Resolve(params Params) (Params, error) {
	out := s.Defaults()
	maps.Copy(out, params)

	for _, p := range s.Parameters {
		v, ok := out[p.Name]
		if !ok {
			continue
		}
		coerced, err := p.coerce(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		out[p.Name] = coerced
	}
	return out, nil
}

func (p Parameter) coerce(v any) (any, error) {
	switch p.Type {
	case ParamInt:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return int(math.Round(p.clamp(f))), nil
	case ParamFloat:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return p.clamp(f), nil
	case ParamBool:
		return toBool(v)
	case ParamChoice:
		s := fmt.Sprint(v)
		if len(p.Options) > 0 && !slices.Contains(p.Options, s) {
			return nil, fmt.Errorf("%q is not one of %v", s, p.Options)
		}
		return s, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (p Parameter) clamp(f float64) float64 {
	if p.Min != nil && f < *p.Min {
		f = *p.Min
	}
	if p.Max != nil && f > *p.Max {
		f = *p.Max
	}
	return f
}

// Params holds parameter values keyed by parameter name.
type Params map[string]any

// Float returns the named value as a float64, or def.
func (p Params) Float(name string, def float64) float64 {
	if v, ok := p[name]; ok {
		if f, err := toFloat(v); err == nil {
			return f
		}
	}
	return def
}

// Int returns the named value as an int, or def.
func (p Params) Int(name string, def int) int {
	if v, ok := p[name]; ok {
		if f, err := toFloat(v); err == nil {
			return int(f)
		}
	}
	return def
}

// String returns the named value as a string, or def.
func (p Params) String(name string, def string) string {
	if v, ok := p[name]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return def
}

// Bool returns the named value as a bool, or def.
func (p Params) Bool(name string, def bool) bool {
	if v, ok := p[name]; ok {
		if b, err := toBool(v); err == nil {
			return b
		}
	}
	return def
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("%q is not a bool", b)
		}
		return parsed, nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}
