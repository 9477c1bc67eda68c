package sectext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueType identifies a registered value type by its ordinal in the
// schema's type table. The built-in types occupy the first ordinals in
// every schema; custom types follow in registration order.
type ValueType int

const (
	Text     ValueType = iota // string
	Integer                   // int
	Number                    // float64
	Bool                      // bool
	List                      // []string, comma separated
	Duration                  // time.Duration

	builtinTypeCount
)

// Codec describes how a value type is read, checked and written.
type Codec struct {
	// Name is the stable type name ("text", "number", ...).
	Name string

	// Parse converts raw field content into a value.
	Parse func(raw string) (any, error)

	// Format converts a value back into field content.
	Format func(v any) string

	// Validate reports whether v is a value of this type.
	Validate func(v any) bool

	// Default is substituted for undefined content. It must pass Validate.
	Default any
}

// builtinCodecs is indexed by the built-in ValueType ordinals.
var builtinCodecs = [builtinTypeCount]Codec{
	Text: {
		Name:     "text",
		Parse:    func(raw string) (any, error) { return raw, nil },
		Format:   func(v any) string { s, _ := v.(string); return s },
		Validate: isType[string],
		Default:  "",
	},
	Integer: {
		Name: "integer",
		Parse: func(raw string) (any, error) {
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				return nil, err
			}
			return n, nil
		},
		Format:   func(v any) string { n, _ := v.(int); return strconv.Itoa(n) },
		Validate: isType[int],
		Default:  0,
	},
	Number: {
		Name: "number",
		Parse: func(raw string) (any, error) {
			f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
		Format: func(v any) string {
			f, _ := v.(float64)
			return strconv.FormatFloat(f, 'g', -1, 64)
		},
		Validate: isType[float64],
		Default:  0.0,
	},
	Bool: {
		Name:     "bool",
		Parse:    parseBool,
		Format:   func(v any) string { b, _ := v.(bool); return strconv.FormatBool(b) },
		Validate: isType[bool],
		Default:  false,
	},
	List: {
		Name:     "list",
		Parse:    func(raw string) (any, error) { return SplitList(raw), nil },
		Format:   func(v any) string { l, _ := v.([]string); return strings.Join(l, ", ") },
		Validate: isType[[]string],
		Default:  []string{},
	},
	Duration: {
		Name: "duration",
		Parse: func(raw string) (any, error) {
			d, err := time.ParseDuration(strings.TrimSpace(raw))
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		Format:   func(v any) string { d, _ := v.(time.Duration); return d.String() },
		Validate: isType[time.Duration],
		Default:  time.Duration(0),
	},
}

func isType[T any](v any) bool {
	_, ok := v.(T)
	return ok
}

func parseBool(raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "on", "1", "t", "y":
		return true, nil
	case "false", "no", "off", "0", "f", "n":
		return false, nil
	default:
		return nil, fmt.Errorf("invalid bool %q", raw)
	}
}

// SplitList splits comma separated content, trimming items and dropping
// empty ones.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnumCodec builds a text codec restricted to the given values. Parsing
// is case-insensitive and yields the canonical spelling; the first value
// is the default.
func EnumCodec(name string, values ...string) Codec {
	canon := make(map[string]string, len(values))
	for _, v := range values {
		canon[strings.ToLower(v)] = v
	}
	def := ""
	if len(values) > 0 {
		def = values[0]
	}
	return Codec{
		Name: name,
		Parse: func(raw string) (any, error) {
			if v, ok := canon[strings.ToLower(strings.TrimSpace(raw))]; ok {
				return v, nil
			}
			return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(values, ", "))
		},
		Format: func(v any) string { s, _ := v.(string); return s },
		Validate: func(v any) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			_, known := canon[strings.ToLower(s)]
			return known
		},
		Default: def,
	}
}

// undefinedPattern matches content that stands for "no value":
// undefined, x, xx..., x-x (case-insensitive).
var undefinedPattern = regexp.MustCompile(`^(?i:undefined|x+|x-x)$`)

// IsUndefined reports whether content is an undefined sentinel.
func IsUndefined(content string) bool {
	return undefinedPattern.MatchString(strings.TrimSpace(content))
}
