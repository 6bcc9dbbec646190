package tle

import (
	"errors"
	"fmt"
)

// ErrSyntax is wrapped by FormatError when a field fails numeric parsing
// and no underlying strconv error is available.
var ErrSyntax = errors.New("invalid syntax")

// FormatError reports malformed line structure or an unparsable field.
type FormatError struct {
	Line  int    // 1 or 2; 0 for whole-entry problems
	Field string // column name, empty for structural problems
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("tle line %d: %v", e.Line, e.Err)
	case e.Line == 0:
		return fmt.Sprintf("tle %s %q: %v", e.Field, e.Value, e.Err)
	default:
		return fmt.Sprintf("tle line %d field %s %q: %v", e.Line, e.Field, e.Value, e.Err)
	}
}

func (e *FormatError) Unwrap() error { return e.Err }

// ChecksumError reports a mod-10 checksum mismatch on a data line.
type ChecksumError struct {
	Line int
	Want int // digit carried in column 69
	Got  int // digit computed from columns 1-68
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("tle line %d: checksum %d, computed %d", e.Line, e.Want, e.Got)
}

// RangeError reports a parsed value outside its physically valid bounds.
type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("tle %s %g outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}
