// Package ir is the compiler context's module representation: a single
// function body ("jit_main") being assembled one deferred node at a time,
// with an ordered argument list, an ordered op list, and an ordered result
// list. No real MLIR/LLVM binding exists in this pack, so the module is a
// small textual pseudo-IR the way the teacher repo represents every
// external toolchain's input — as text it knows how to build up and feed
// to a subprocess — rather than an in-memory dialect-object graph.
package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Arg is one synthesized function argument.
type Arg struct {
	SSA    string // e.g. "%arg0"
	IRType string
}

// Result is one synthesized function return value.
type Result struct {
	SSA    string
	IRType string
}

// Op is one operation appended to the function body. Attrs are rendered
// in sorted-key order so that two builders that accumulate the same
// attributes via a map (non-deterministic iteration order) still produce
// byte-identical text.
type Op struct {
	Kind       string
	SSA        string
	Operands   []string
	ResultType string
	Attrs      map[string]string

	// ResultShape is set only for ops that create an array from literal
	// parameters (arange, full): shape is then known at build time. Ops
	// that merely transform another value (add, neg) leave this nil;
	// their output shape is whatever their operand's runtime shape turns
	// out to be, discovered at Invoke time, not at build time.
	ResultShape []int64
}

// Module accumulates one compilation unit: the function "jit_main".
type Module struct {
	fnName  string
	args    []Arg
	results []Result
	ops     []Op
	nextSSA int
}

// NewModule opens an empty module with an empty jit_main function.
func NewModule() *Module {
	return &Module{fnName: "jit_main"}
}

func (m *Module) newSSA() string {
	name := fmt.Sprintf("%%%d", m.nextSSA)
	m.nextSSA++
	return name
}

// AddArg synthesizes a new function argument of the given IR type and
// returns its SSA value name. Called by depmgr when an unbound
// dependency must be imported as an argument.
func (m *Module) AddArg(irType string) string {
	ssa := m.newSSA()
	m.args = append(m.args, Arg{SSA: ssa, IRType: irType})
	return ssa
}

// NumArgs reports how many arguments have been synthesized so far.
func (m *Module) NumArgs() int { return len(m.args) }

// Emit appends an operation to the function body and returns its result
// SSA value name. resultType may be empty for operations with no result
// (e.g. a host-only print).
func (m *Module) Emit(kind string, operands []string, resultType string, attrs map[string]string, resultShape []int64) string {
	op := Op{
		Kind:        kind,
		Operands:    append([]string(nil), operands...),
		ResultType:  resultType,
		Attrs:       attrs,
		ResultShape: resultShape,
	}
	if resultType != "" {
		op.SSA = m.newSSA()
	}
	m.ops = append(m.ops, op)
	return op.SSA
}

// Ops returns the accumulated op list, in emission order.
func (m *Module) Ops() []Op { return m.ops }

// Args returns the accumulated argument list, in emission order.
func (m *Module) Args() []Arg { return m.args }

// AddResult appends one return value, referencing an existing SSA name
// (typically one recorded in depmgr's ivm).
func (m *Module) AddResult(ssa, irType string) {
	m.results = append(m.results, Result{SSA: ssa, IRType: irType})
}

// Results returns the accumulated result list, in emission order.
func (m *Module) Results() []Result { return m.results }

// Text renders the module's canonical textual form: the function
// signature followed by its body. This is the "module text" spec.md
// refers to — the DDPT_VERBOSE dump target and (after canonicalization
// through package pb's textproto formatter) the JIT cache-key hash input.
func (m *Module) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "func @%s(", m.fnName)
	for i, a := range m.args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", a.SSA, a.IRType)
	}
	b.WriteString(") -> (")
	for i, r := range m.results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.IRType)
	}
	b.WriteString(") {\n")
	for _, op := range m.ops {
		if op.SSA != "" {
			fmt.Fprintf(&b, "  %s = %s", op.SSA, op.Kind)
		} else {
			fmt.Fprintf(&b, "  %s", op.Kind)
		}
		if len(op.Operands) > 0 {
			fmt.Fprintf(&b, "(%s)", strings.Join(op.Operands, ", "))
		}
		writeSortedAttrs(&b, op.Attrs)
		if op.ResultType != "" {
			fmt.Fprintf(&b, " : %s", op.ResultType)
		}
		b.WriteString("\n")
	}
	b.WriteString("  return")
	if len(m.results) > 0 {
		b.WriteString(" ")
		names := make([]string, len(m.results))
		for i, r := range m.results {
			names[i] = r.SSA
		}
		b.WriteString(strings.Join(names, ", "))
	}
	b.WriteString("\n}\n")
	return b.String()
}

func writeSortedAttrs(b *strings.Builder, attrs map[string]string) {
	if len(attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString(" {")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s = %s", k, attrs[k])
	}
	b.WriteString("}")
}
