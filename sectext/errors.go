package sectext

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Diagnostics and *Error values unwrap to one of these,
// so callers can test with errors.Is.
var (
	// ErrMissingDescriptor: a term's key is not registered for its context.
	ErrMissingDescriptor = errors.New("missing descriptor")

	// ErrDescriptorWithoutSetter: the descriptor exists but cannot store values.
	ErrDescriptorWithoutSetter = errors.New("descriptor without setter")

	// ErrValueParse: the value type's parser rejected the raw content.
	ErrValueParse = errors.New("value parse error")

	// ErrTypeMismatch: a produced value does not match the declared value type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidValue: a setter rejected an otherwise well-typed value, or
	// an emitted key or value would span more than one line.
	ErrInvalidValue = errors.New("invalid value")

	// ErrDataTargetMissing: no open inner record can receive the value.
	ErrDataTargetMissing = errors.New("data target missing")

	// ErrLineSkipped: a line inside a context could not be read as a term.
	ErrLineSkipped = errors.New("line skipped")

	// ErrPackingIndexInvalid: a record index lies outside its pack window.
	ErrPackingIndexInvalid = errors.New("packing index invalid")

	// ErrChildParse: delegated sub-document parsing failed or made no progress.
	ErrChildParse = errors.New("child parse failure")

	// ErrIO: reading or writing a file failed.
	ErrIO = errors.New("io failure")

	// ErrDuplicateRegistration: a (context, key) pair or name was registered twice.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrNotApplicable: a descriptor, setter or emitter does not fit the
	// record shape or schema it was used with.
	ErrNotApplicable = errors.New("not applicable to this schema shape")

	// ErrNoPacking: a packed operation was requested on a schema without
	// packing configuration.
	ErrNoPacking = errors.New("schema has no packing configuration")

	// ErrSchemaBuilt: a Builder was used after Build.
	ErrSchemaBuilt = errors.New("schema already built")
)

// Kind classifies a diagnostic or error.
type Kind uint8

const (
	KindMissingDescriptor Kind = iota + 1
	KindDescriptorWithoutSetter
	KindValueParse
	KindTypeMismatch
	KindInvalidValue
	KindDataTargetMissing
	KindLineSkipped
	KindPackingIndexInvalid
	KindChildParse
	KindIO
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindMissingDescriptor:
		return "MissingDescriptor"
	case KindDescriptorWithoutSetter:
		return "DescriptorWithoutSetter"
	case KindValueParse:
		return "ValueParseError"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindInvalidValue:
		return "InvalidValue"
	case KindDataTargetMissing:
		return "DataTargetMissing"
	case KindLineSkipped:
		return "LineSkipped"
	case KindPackingIndexInvalid:
		return "PackingIndexInvalid"
	case KindChildParse:
		return "ChildParseFailure"
	case KindIO:
		return "IOFailure"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Sentinel returns the sentinel error for the kind.
func (k Kind) Sentinel() error {
	switch k {
	case KindMissingDescriptor:
		return ErrMissingDescriptor
	case KindDescriptorWithoutSetter:
		return ErrDescriptorWithoutSetter
	case KindValueParse:
		return ErrValueParse
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindInvalidValue:
		return ErrInvalidValue
	case KindDataTargetMissing:
		return ErrDataTargetMissing
	case KindLineSkipped:
		return ErrLineSkipped
	case KindPackingIndexInvalid:
		return ErrPackingIndexInvalid
	case KindChildParse:
		return ErrChildParse
	case KindIO:
		return ErrIO
	default:
		return nil
	}
}

// ============================================================
// Diagnostics
// ============================================================

// Diagnostic is a recoverable problem found while parsing. It never
// aborts the parse; the affected term or line is skipped.
type Diagnostic struct {
	Kind    Kind
	Line    int    // 1-based source line, 0 if unknown
	Context string // context name
	Key     string // descriptor key as written, if any
	Message string
	Err     error // underlying cause, if any
}

func (d Diagnostic) Error() string {
	var sb strings.Builder
	if d.Line > 0 {
		fmt.Fprintf(&sb, "line %d: ", d.Line)
	}
	sb.WriteString(d.Kind.String())
	if d.Context != "" {
		sb.WriteString(" [")
		sb.WriteString(d.Context)
		if d.Key != "" {
			sb.WriteString(".")
			sb.WriteString(d.Key)
		}
		sb.WriteString("]")
	}
	if d.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(d.Message)
	}
	if d.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(d.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes the kind's sentinel and the cause.
func (d Diagnostic) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := d.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if d.Err != nil {
		errs = append(errs, d.Err)
	}
	return errs
}

// Diagnostics is the ordered list of diagnostics from one call.
type Diagnostics []Diagnostic

// Count returns how many diagnostics have the given kind.
func (ds Diagnostics) Count(kind Kind) int {
	n := 0
	for _, d := range ds {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// First returns the first diagnostic of the given kind.
func (ds Diagnostics) First(kind Kind) (Diagnostic, bool) {
	for _, d := range ds {
		if d.Kind == kind {
			return d, true
		}
	}
	return Diagnostic{}, false
}

// Err joins all diagnostics into one error, or returns nil.
func (ds Diagnostics) Err() error {
	if len(ds) == 0 {
		return nil
	}
	errs := make([]error, len(ds))
	for i, d := range ds {
		errs[i] = d
	}
	return errors.Join(errs...)
}

// ============================================================
// Fatal errors
// ============================================================

// Error is a failure that aborts a whole call: IOFailure,
// ChildParseFailure or PackingIndexInvalid.
type Error struct {
	Kind Kind
	Path string // file involved, if any
	Line int    // 1-based source line, 0 if unknown
	Err  error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, ":%d", e.Line)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes the kind's sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func ioError(path string, err error) *Error {
	return &Error{Kind: KindIO, Path: path, Err: err}
}
