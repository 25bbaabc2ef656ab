// Package outcome defines the tagged result type every node and module in
// Rockestra produces.
package outcome

import (
	"github.com/rockestra/rockestra/pkg/rockestraerr"
)

// Kind enumerates the tags an Outcome can carry.
type Kind string

const (
	KindOk          Kind = "Ok"
	KindError       Kind = "Error"
	KindTimeout     Kind = "Timeout"
	KindSkipped     Kind = "Skipped"
	KindFallback    Kind = "Fallback"
	KindCanceled    Kind = "Canceled"
	KindUnspecified Kind = "Unspecified"
)

// hasValue reports whether a Kind carries a T value.
func (k Kind) hasValue() bool {
	return k == KindOk || k == KindFallback
}

// Outcome is the tagged union result of every node/module invocation.
// The zero value is Unspecified.
type Outcome[T any] struct {
	kind  Kind
	code  string
	value T
	set   bool
}

// Ok constructs a successful outcome carrying value.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{kind: KindOk, code: "OK", value: value, set: true}
}

// Error constructs a failed outcome with the given code.
func Error[T any](code string) Outcome[T] {
	return Outcome[T]{kind: KindError, code: code}
}

// Timeout constructs a timeout outcome with the given code.
func Timeout[T any](code string) Outcome[T] {
	return Outcome[T]{kind: KindTimeout, code: code}
}

// Skipped constructs a skipped outcome with the given code.
func Skipped[T any](code string) Outcome[T] {
	return Outcome[T]{kind: KindSkipped, code: code}
}

// Fallback constructs a fallback outcome carrying value.
func Fallback[T any](code string, value T) Outcome[T] {
	return Outcome[T]{kind: KindFallback, code: code, value: value, set: true}
}

// Canceled constructs a canceled outcome with the given code.
func Canceled[T any](code string) Outcome[T] {
	return Outcome[T]{kind: KindCanceled, code: code}
}

// Unspecified constructs the zero-value outcome: empty code, no timestamps.
func Unspecified[T any]() Outcome[T] {
	return Outcome[T]{kind: KindUnspecified}
}

// Kind returns the outcome's tag. The zero value reports KindUnspecified.
func (o Outcome[T]) Kind() Kind {
	if o.kind == "" {
		return KindUnspecified
	}
	return o.kind
}

// Code returns the outcome's string code. Ok outcomes always report "OK".
func (o Outcome[T]) Code() string { return o.code }

// IsOk reports whether the outcome succeeded.
func (o Outcome[T]) IsOk() bool { return o.kind == KindOk }

// HasValue reports whether Value can be read without error.
func (o Outcome[T]) HasValue() bool { return o.set }

// Value returns the carried value. Reading the value of a
// non-value-carrying outcome is a programming error, not a recoverable one.
func (o Outcome[T]) Value() (T, error) {
	var zero T
	if !o.set {
		return zero, rockestraerr.New(
			rockestraerr.TierContractViolation,
			rockestraerr.CodeOutcomeHasNoValue,
			"outcome of kind "+string(o.kind)+" carries no value",
		)
	}
	return o.value, nil
}

// MustValue returns the carried value and panics if none is present. Intended
// for call sites that have already checked HasValue or Kind.
func (o Outcome[T]) MustValue() T {
	v, err := o.Value()
	if err != nil {
		panic(err)
	}
	return v
}
