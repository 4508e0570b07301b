package jit

import (
	"math"
	"strconv"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/ir"
)

// vm is the deterministic, toolchain-free Backend: it walks an ir.Module's
// recorded Op list directly instead of lowering it through an external
// compiler. It exists so seed scenarios S1–S6 are testable in an
// environment where no real MLIR toolchain can be assumed present — the
// vm's Compile/Invoke pair fulfils exactly the same CompiledFunc contract
// execBackend does, so callers (the scheduler, Engine.Compile's cache
// path) cannot tell them apart.
type vm struct{}

// vmValue is one SSA value's runtime content: the element width/float-ness
// decoded from its declared IR type, its row-major shape/strides, and its
// raw little-endian bytes.
type vmValue struct {
	elem    elemInfo
	shape   []int64
	strides []int64
	data    []byte
}

func (vm) Compile(mod *ir.Module, pipeline string) (CompiledFunc, error) {
	return &vmCompiled{mod: mod}, nil
}

type vmCompiled struct {
	mod *ir.Module
}

func (c *vmCompiled) Close() error { return nil }

func (c *vmCompiled) Invoke(flatInput []uint64) ([]uint64, error) {
	env := make(map[string]vmValue, len(c.mod.Args())+len(c.mod.Ops()))

	off := 0
	for _, a := range c.mod.Args() {
		pt, err := parseIRType(a.IRType)
		if err != nil {
			return nil, err
		}
		m, n := future.DecodeMemref(flatInput[off:], pt.rank)
		off += n
		env[a.SSA] = vmValue{
			elem:    pt.elem,
			shape:   m.Sizes,
			strides: m.Strides,
			data:    future.BytesFromMemref(m, elemBytesOf(pt.elem)),
		}
	}

	for _, op := range c.mod.Ops() {
		v, err := execOp(op, env)
		if err != nil {
			return nil, ddpt.Wrap("vm: op "+op.Kind, err)
		}
		if op.SSA != "" {
			env[op.SSA] = v
		}
	}

	var out []uint64
	for _, r := range c.mod.Results() {
		v, ok := env[r.SSA]
		if !ok {
			return nil, &ddpt.ErrInvariantViolation{Msg: "vm: result " + r.SSA + " never produced"}
		}
		pt, err := parseIRType(r.IRType)
		if err != nil {
			return nil, err
		}
		out = encodeResultPTensor(out, v, pt.distributed && pt.rank > 0)
	}
	return out, nil
}

// encodeResultPTensor appends v's wire encoding to dst, matching whatever
// layout depmgr.Manager.Deliver will decode it with (future.DecodePTensor):
// a single memref for a non-distributed (or rank-0) result, or a
// halo-triple-plus-local-offsets PTensor for a distributed one. The vm has
// no real distributed execution model, so the halo memrefs it emits are
// always degenerate (zero-size) — only the local data memref carries actual
// content — but their word count still has to match PtensorWords(rank,
// true) or Deliver's DecodePTensor call indexes past the end of the flat
// output and panics.
func encodeResultPTensor(dst []uint64, v vmValue, distributed bool) []uint64 {
	data := future.Memref{
		Allocated: future.HostPointer(v.data),
		Aligned:   future.HostPointer(v.data),
		Sizes:     v.shape,
		Strides:   v.strides,
	}
	if !distributed || len(v.shape) == 0 {
		return future.EncodeMemref(dst, data)
	}
	rank := len(v.shape)
	empty := future.Memref{Sizes: make([]int64, rank), Strides: make([]int64, rank)}
	offsets := future.Memref{Sizes: []int64{int64(rank)}, Strides: []int64{1}}
	dst = future.EncodeMemref(dst, empty)   // left halo
	dst = future.EncodeMemref(dst, data)    // local data
	dst = future.EncodeMemref(dst, empty)   // right halo
	dst = future.EncodeMemref(dst, offsets) // local offsets
	return dst
}

func elemBytesOf(e elemInfo) int { return (e.width + 7) / 8 }

func execOp(op ir.Op, env map[string]vmValue) (vmValue, error) {
	switch op.Kind {
	case "arange":
		return execArange(op)
	case "full":
		return execFull(op)
	case "add":
		return execBinary(op, env, func(a, b float64) float64 { return a + b })
	case "neg":
		return execUnary(op, env, func(a float64) float64 { return -a })
	default:
		return vmValue{}, &ddpt.ErrInvariantViolation{Msg: "vm: unknown op kind " + op.Kind}
	}
}

func execArange(op ir.Op) (vmValue, error) {
	pt, err := parseIRType(op.ResultType)
	if err != nil {
		return vmValue{}, err
	}
	start, err := strconv.ParseInt(op.Attrs["start"], 10, 64)
	if err != nil {
		return vmValue{}, err
	}
	step, err := strconv.ParseInt(op.Attrs["step"], 10, 64)
	if err != nil {
		return vmValue{}, err
	}
	n := op.ResultShape[0]
	elemW := elemBytesOf(pt.elem)
	data := make([]byte, n*int64(elemW))
	for i := int64(0); i < n; i++ {
		putNumeric(data[i*int64(elemW):], float64(start+i*step), pt.elem)
	}
	return vmValue{elem: pt.elem, shape: op.ResultShape, strides: future.RowMajorStrides(op.ResultShape), data: data}, nil
}

func execFull(op ir.Op) (vmValue, error) {
	pt, err := parseIRType(op.ResultType)
	if err != nil {
		return vmValue{}, err
	}
	value, err := strconv.ParseFloat(op.Attrs["value"], 64)
	if err != nil {
		return vmValue{}, err
	}
	n := int64(1)
	for _, s := range op.ResultShape {
		n *= s
	}
	elemW := elemBytesOf(pt.elem)
	data := make([]byte, n*int64(elemW))
	for i := int64(0); i < n; i++ {
		putNumeric(data[i*int64(elemW):], value, pt.elem)
	}
	return vmValue{elem: pt.elem, shape: op.ResultShape, strides: future.RowMajorStrides(op.ResultShape), data: data}, nil
}

func execBinary(op ir.Op, env map[string]vmValue, fn func(a, b float64) float64) (vmValue, error) {
	a, ok := env[op.Operands[0]]
	if !ok {
		return vmValue{}, &ddpt.ErrInvariantViolation{Msg: "vm: operand " + op.Operands[0] + " not yet bound"}
	}
	b, ok := env[op.Operands[1]]
	if !ok {
		return vmValue{}, &ddpt.ErrInvariantViolation{Msg: "vm: operand " + op.Operands[1] + " not yet bound"}
	}
	pt, err := parseIRType(op.ResultType)
	if err != nil {
		return vmValue{}, err
	}
	n := numElems(a.shape)
	elemW := elemBytesOf(pt.elem)
	out := make([]byte, n*int64(elemW))
	for i := int64(0); i < n; i++ {
		av := getNumeric(a.data, i, a.elem)
		bv := getNumeric(b.data, i, b.elem)
		putNumeric(out[i*int64(elemW):], fn(av, bv), pt.elem)
	}
	return vmValue{elem: pt.elem, shape: a.shape, strides: a.strides, data: out}, nil
}

func execUnary(op ir.Op, env map[string]vmValue, fn func(a float64) float64) (vmValue, error) {
	a, ok := env[op.Operands[0]]
	if !ok {
		return vmValue{}, &ddpt.ErrInvariantViolation{Msg: "vm: operand " + op.Operands[0] + " not yet bound"}
	}
	pt, err := parseIRType(op.ResultType)
	if err != nil {
		return vmValue{}, err
	}
	n := numElems(a.shape)
	elemW := elemBytesOf(pt.elem)
	out := make([]byte, n*int64(elemW))
	for i := int64(0); i < n; i++ {
		putNumeric(out[i*int64(elemW):], fn(getNumeric(a.data, i, a.elem)), pt.elem)
	}
	return vmValue{elem: pt.elem, shape: a.shape, strides: a.strides, data: out}, nil
}

func numElems(shape []int64) int64 {
	n := int64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}

func putNumeric(dst []byte, v float64, e elemInfo) {
	switch {
	case e.float && e.width == 32:
		putLE32(dst, math.Float32bits(float32(v)))
	case e.float && e.width == 64:
		putLE64(dst, math.Float64bits(v))
	default:
		putIntLE(dst, int64(v), e.width)
	}
}

func getNumeric(src []byte, i int64, e elemInfo) float64 {
	elemW := elemBytesOf(e)
	off := i * int64(elemW)
	switch {
	case e.float && e.width == 32:
		return float64(math.Float32frombits(getLE32(src[off:])))
	case e.float && e.width == 64:
		return math.Float64frombits(getLE64(src[off:]))
	default:
		return float64(getIntLE(src[off:], e.width))
	}
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getLE64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func putIntLE(b []byte, v int64, width int) {
	n := (width + 7) / 8
	for i := 0; i < n; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getIntLE(b []byte, width int) int64 {
	n := (width + 7) / 8
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	// Sign-extend from width bits.
	shift := uint(64 - width)
	if width >= 64 {
		return int64(v)
	}
	return int64(v<<shift) >> shift
}
