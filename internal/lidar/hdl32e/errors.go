package hdl32e

import "errors"

// Sentinel errors for scan frame decoding and packet encoding. Callers
// distinguish failure modes with errors.Is; the returned errors carry the
// offending path or value as context.
var (
	// ErrNotFound reports a missing scan frame or timestamp index.
	ErrNotFound = errors.New("hdl32e: not found")

	// ErrFormat reports a scan frame whose extension or raster layout does
	// not match the expected shape.
	ErrFormat = errors.New("hdl32e: bad scan frame format")

	// ErrInvalidInput reports a caller contract violation, such as handing
	// the encoder something other than one packet's worth of columns.
	ErrInvalidInput = errors.New("hdl32e: invalid input")
)
