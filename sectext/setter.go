package sectext

import "fmt"

// Scope says which record a setter writes into.
type Scope uint8

const (
	ScopeOuter Scope = iota // the top-level Record
	ScopeInner              // the active InnerRecord of the term's context
)

// Outcome is the result of applying one value.
type Outcome uint8

const (
	Valid     Outcome = iota // stored
	Invalid                  // rejected by the setter
	DataError                // no target, wrong shape, or unusable descriptor
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Valid:
		return "Valid"
	case Invalid:
		return "Invalid"
	case DataError:
		return "DataError"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Setter stores a parsed value into a record. Build one with Outer,
// OuterCheck, Inner or InnerCheck; the type parameters are checked at
// apply time, so a setter handed a record of another shape reports
// DataError instead of panicking.
type Setter struct {
	scope Scope
	apply func(target, value any) Outcome
}

// Scope returns where the setter writes.
func (s *Setter) Scope() Scope { return s.scope }

// Apply stores value into target.
func (s *Setter) Apply(target, value any) Outcome {
	if s == nil || s.apply == nil {
		return DataError
	}
	return s.apply(target, value)
}

// Outer builds a setter that writes into the top-level record.
func Outer[R Record, V any](fn func(R, V)) *Setter {
	return OuterCheck(func(r R, v V) bool {
		fn(r, v)
		return true
	})
}

// OuterCheck is Outer with a setter that may reject the value.
func OuterCheck[R Record, V any](fn func(R, V) bool) *Setter {
	return &Setter{scope: ScopeOuter, apply: typedApply(fn)}
}

// Inner builds a setter that writes into the active inner record.
func Inner[I InnerRecord, V any](fn func(I, V)) *Setter {
	return InnerCheck(func(ir I, v V) bool {
		fn(ir, v)
		return true
	})
}

// InnerCheck is Inner with a setter that may reject the value.
func InnerCheck[I InnerRecord, V any](fn func(I, V) bool) *Setter {
	return &Setter{scope: ScopeInner, apply: typedApply(fn)}
}

func typedApply[T, V any](fn func(T, V) bool) func(target, value any) Outcome {
	return func(target, value any) Outcome {
		t, ok := target.(T)
		if !ok {
			return DataError
		}
		v, ok := value.(V)
		if !ok {
			return DataError
		}
		if !fn(t, v) {
			return Invalid
		}
		return Valid
	}
}
