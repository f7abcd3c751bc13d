package model

// FieldStatus describes how a single field extraction ended.
type FieldStatus int

const (
	FieldMissing FieldStatus = iota
	FieldPresent
	FieldMalformed
)

func (s FieldStatus) String() string {
	switch s {
	case FieldPresent:
		return "present"
	case FieldMalformed:
		return "malformed"
	default:
		return "missing"
	}
}

// Field is the tagged outcome of extracting one value. Err is set only when
// Status is FieldMalformed.
type Field[T any] struct {
	Value  T
	Status FieldStatus
	Err    error
}

// Present returns a present outcome holding v.
func Present[T any](v T) Field[T] {
	return Field[T]{Value: v, Status: FieldPresent}
}

// Missing returns the outcome for markup that was not found.
func Missing[T any]() Field[T] {
	return Field[T]{Status: FieldMissing}
}

// Malformed returns the outcome for markup that was found but could not be
// processed.
func Malformed[T any](err error) Field[T] {
	return Field[T]{Status: FieldMalformed, Err: err}
}

// OK reports whether the value was extracted.
func (f Field[T]) OK() bool { return f.Status == FieldPresent }
