package taxonomy

type exactlyKind uint8

const (
	exactlyEmpty exactlyKind = iota
	exactlyValue
	exactlyConflict
)

// Exactly is a tri-state constraint over a value: unconstrained, pinned
// to exactly one value, or conflicting. The zero value is unconstrained.
// Conflict is its own state rather than a sentinel of T, so any T value
// remains pinnable.
type Exactly[T comparable] struct {
	kind  exactlyKind
	value T
}

func ExactlyValue[T comparable](v T) Exactly[T] {
	return Exactly[T]{kind: exactlyValue, value: v}
}

func Conflict[T comparable]() Exactly[T] {
	return Exactly[T]{kind: exactlyConflict}
}

// And combines two constraints. Conflict absorbs, unconstrained is the
// identity, and two pins agree only on equal values. And is commutative
// and associative, so a list of constraints may be folded in any order.
func (e Exactly[T]) And(other Exactly[T]) Exactly[T] {
	switch {
	case e.kind == exactlyConflict || other.kind == exactlyConflict:
		return Conflict[T]()
	case e.kind == exactlyEmpty:
		return other
	case other.kind == exactlyEmpty:
		return e
	case e.value == other.value:
		return other
	default:
		return Conflict[T]()
	}
}

func (e Exactly[T]) IsEmpty() bool {
	return e.kind == exactlyEmpty
}

func (e Exactly[T]) IsConflict() bool {
	return e.kind == exactlyConflict
}

// Value returns the pinned value, if any.
func (e Exactly[T]) Value() (T, bool) {
	if e.kind != exactlyValue {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Matches reports whether a candidate satisfies the constraint. A
// conflicting constraint matches nothing.
func (e Exactly[T]) Matches(v T) bool {
	switch e.kind {
	case exactlyEmpty:
		return true
	case exactlyValue:
		return e.value == v
	default:
		return false
	}
}
