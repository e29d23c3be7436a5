package formula

import "fmt"

// ParseError reports a malformed formula or declaration string.
type ParseError struct {
	Pos int    // Byte offset into the input.
	Msg string // What went wrong.
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

// BindingError reports an undeclared or badly declared symbol.
type BindingError struct {
	Symbol string
	Msg    string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("binding error for %q: %s", e.Symbol, e.Msg)
}

// DimensionMismatchError reports incompatible inner dimensions, either
// between operator children at compile time or between a declared argument
// and the data buffer supplied at invocation time.
type DimensionMismatchError struct {
	Op       string // Operator or argument name.
	Expected int
	Actual   int
	Msg      string
}

func (e *DimensionMismatchError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("dimension mismatch in %s: %s (expected %d, got %d)", e.Op, e.Msg, e.Expected, e.Actual)
	}
	return fmt.Sprintf("dimension mismatch in %s: expected %d, got %d", e.Op, e.Expected, e.Actual)
}

// UnsupportedOperatorError reports a node kind for which a required rule
// (differentiation or backend lowering) is not registered.
type UnsupportedOperatorError struct {
	Op      string
	Context string // "differentiation", "gpu codegen", ...
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("operator %s is not supported for %s", e.Op, e.Context)
}
