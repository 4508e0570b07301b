// Package dtype is the closed 11-entry table of array element types this
// runtime understands. It is deliberately thin: the front-end dispatch
// table that does real work with these tags (arithmetic, conversions,
// printing) is an external collaborator out of scope for this repo; all
// the dependency manager needs from dtype is the signless IR mapping used
// when synthesizing an unbound input's function-argument type.
package dtype

import "github.com/ddpt-project/ddpt"

// DType enumerates the supported primitive element types.
type DType int

const (
	BOOL DType = iota
	INT8
	UINT8
	INT16
	UINT16
	INT32
	UINT32
	INT64
	UINT64
	FLOAT32
	FLOAT64

	numDTypes
)

var names = [numDTypes]string{
	BOOL: "BOOL", INT8: "INT8", UINT8: "UINT8",
	INT16: "INT16", UINT16: "UINT16",
	INT32: "INT32", UINT32: "UINT32",
	INT64: "INT64", UINT64: "UINT64",
	FLOAT32: "FLOAT32", FLOAT64: "FLOAT64",
}

func (d DType) String() string {
	if d < 0 || d >= numDTypes {
		return "INVALID"
	}
	return names[d]
}

// Valid reports whether d is one of the 11 known tags.
func (d DType) Valid() bool { return d >= 0 && d < numDTypes }

// irKind describes a dtype's compiler-IR shape: bit width, and whether it
// lowers to a float type instead of an (always signless) integer type.
type irKind struct {
	width int
	float bool
}

var kinds = [numDTypes]irKind{
	BOOL:    {1, false},
	INT8:    {8, false},
	UINT8:   {8, false},
	INT16:   {16, false},
	UINT16:  {16, false},
	INT32:   {32, false},
	UINT32:  {32, false},
	INT64:   {64, false},
	UINT64:  {64, false},
	FLOAT32: {32, true},
	FLOAT64: {64, true},
}

// Unsigned reports whether d is one of the unsigned integer tags.
// Signedness is dtype-tag bookkeeping only: it never appears in emitted
// IR, which always uses signless integers (spec invariant).
func (d DType) Unsigned() bool {
	switch d {
	case UINT8, UINT16, UINT32, UINT64:
		return true
	default:
		return false
	}
}

// Signless returns the bit width and float-ness used to synthesize this
// dtype's compiler IR type. The returned width/float pair never encodes
// signedness, irrespective of d.Unsigned().
func (d DType) Signless() (width int, float bool, err error) {
	if !d.Valid() {
		return 0, false, &ddpt.ErrUnknownDtype{Tag: int(d)}
	}
	k := kinds[d]
	return k.width, k.float, nil
}

// IRType renders the MLIR-ish textual spelling of d's signless IR type,
// e.g. "i32", "ui64" becomes "i64", "f32". This is purely textual (our
// compiler context is a text builder, see package jit) but the rule it
// encodes is real: unsigned widths lower to signless integers.
func (d DType) IRType() (string, error) {
	width, float, err := d.Signless()
	if err != nil {
		return "", err
	}
	if float {
		if width == 32 {
			return "f32", nil
		}
		return "f64", nil
	}
	if width == 1 {
		return "i1", nil
	}
	return irIntName(width), nil
}

func irIntName(width int) string {
	switch width {
	case 8:
		return "i8"
	case 16:
		return "i16"
	case 32:
		return "i32"
	default:
		return "i64"
	}
}
