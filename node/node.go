// Package node is the demo front-end: the minimum set of deferred node
// constructors needed to drive the scheduler end to end (seed scenarios
// S1–S6) without a real array-operation library. Production front-ends
// are out of core scope; these four (plus the eager-fallback HostPrint)
// exist only so tests and the CLI's "run -demo" verb have something
// concrete to enqueue.
package node

import (
	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/depmgr"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/ir"
)

// Node is a promise + emit-capability pair (spec.md §3 "Deferred node").
// guid, dtype, rank and balanced are fixed at construction time; run and
// emit are mutually complementary ways of producing the node's guid's
// value.
type Node interface {
	Guid() ddpt.Guid
	DType() dtype.DType
	Rank() int
	Balanced() bool

	// Run executes the node eagerly. Only ever called for a node whose
	// Emit returned true (a JIT decline).
	Run() error

	// Emit appends this node's operation to b and registers its produced
	// value with dm. Returns true iff the node declines JIT and must be
	// run eagerly instead — in that case Emit must not have mutated b.
	Emit(b *ir.Module, dm *depmgr.Manager) (bool, error)

	// FactoryID is a small enum identifying the node's kind, used only
	// for serialization/diagnostics (never for dispatch).
	FactoryID() int32
}

// FactoryID values — spec.md §3 "factory_id: small enum used for
// serialization only".
const (
	FactoryArange int32 = iota + 1
	FactoryFull
	FactoryAdd
	FactoryNeg
	FactoryHostPrint
)

// base carries the fields common to every compute node: the guid this
// node owns in the Registry from the moment it's constructed (invariant,
// spec.md §3) until dropped, and its statically-known type.
type base struct {
	guid     ddpt.Guid
	dtype    dtype.DType
	rank     int
	balanced bool
	device   ddpt.Device
	team     ddpt.Team
	factory  int32
}

func (n *base) Guid() ddpt.Guid     { return n.guid }
func (n *base) DType() dtype.DType  { return n.dtype }
func (n *base) Rank() int           { return n.rank }
func (n *base) Balanced() bool      { return n.balanced }
func (n *base) FactoryID() int32    { return n.factory }

func (n *base) resultType() depmgr.ResultType {
	return depmgr.ResultType{DType: n.dtype, Rank: n.rank, Device: n.device, Team: n.team}
}

func elemBytes(d dtype.DType) int {
	width, _, _ := d.Signless()
	return (width + 7) / 8
}
