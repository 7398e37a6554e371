package rainbow

import (
	"errors"
	"fmt"

	"github.com/banshee-data/chromatic/internal/units"
)

// Domain errors for grid construction, export and actions.
var (
	// ErrShapeMismatch indicates flux, uncertainty or model arrays that do
	// not match the axis lengths.
	ErrShapeMismatch = errors.New("rainbow: shape mismatch")

	// ErrInvalidParameter indicates a non-positive or malformed parameter.
	ErrInvalidParameter = errors.New("rainbow: invalid parameter")

	// ErrUnknownTimeFormat indicates an export time format outside the
	// recognised set.
	ErrUnknownTimeFormat = units.ErrUnknownTimeFormat

	// ErrIndexOutOfRange indicates a slice index outside the grid.
	ErrIndexOutOfRange = errors.New("rainbow: index out of range")

	// ErrNoModel indicates an operation that needs an attached model.
	ErrNoModel = errors.New("rainbow: no model attached")
)

// ShapeError reports which array disagreed with the expected shape.
type ShapeError struct {
	Array    string
	WantRows int
	WantCols int
	GotRows  int
	GotCols  int
}

func (e *ShapeError) Error() string {
	msg := fmt.Sprintf("%v: %s has shape (%d, %d), want (%d, %d)",
		ErrShapeMismatch, e.Array, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
	if e.GotRows == e.WantCols && e.GotCols == e.WantRows && e.WantRows != e.WantCols {
		msg += "; is it transposed?"
	}
	return msg
}

func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}

// ParameterError wraps ErrInvalidParameter with the offending name and value.
type ParameterError struct {
	Name   string
	Value  float64
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%v: %s = %g (%s)", ErrInvalidParameter, e.Name, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}
