package ocp

import "errors"

// Sentinel errors. Call sites wrap them with the offending name or index, so
// callers should match with errors.Is.
var (
	ErrInvalidDimension  = errors.New("ocp: dimension must be positive")
	ErrInvalidName       = errors.New("ocp: name is not a valid identifier")
	ErrReservedName      = errors.New("ocp: name is reserved")
	ErrDuplicateName     = errors.New("ocp: name already declared with a different shape")
	ErrUnknownParameter  = errors.New("ocp: unknown parameter")
	ErrDimensionMismatch = errors.New("ocp: dimension mismatch")
	ErrInvalidValue      = errors.New("ocp: value must be finite")
	ErrNegativeEpsilon   = errors.New("ocp: regularization epsilon must be non-negative")
	ErrMissingEpsilon    = errors.New("ocp: regularization vector required for inequality constraints")
	ErrFunctionsNotSet   = errors.New("ocp: functions not set")
	ErrUndeclaredSymbol  = errors.New("ocp: expression references an undeclared symbol")
	ErrInvalidSaturation = errors.New("ocp: invalid input saturation")
)
