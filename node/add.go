package node

import (
	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/depmgr"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/registry"
)

// addNode computes the elementwise sum of two previously-registered
// arrays, referenced by guid only (spec.md §3 "Input dependencies are
// referenced by guid only"). Its output shape is resolved at invoke time
// — the IR op carries no ResultShape — so its placeholder future starts
// with an all-zero shape of the right rank and is overwritten on delivery.
type addNode struct {
	base
	aGuid, bGuid ddpt.Guid
	placeholder  *future.HostFuture
}

// Add registers a node computing a+b, inferring dtype/rank/team from a's
// registered future (both operands must agree, as in any elementwise op).
func Add(reg *registry.Registry, aGuid, bGuid ddpt.Guid) (Node, error) {
	a, err := reg.Get(aGuid)
	if err != nil {
		return nil, err
	}
	pf := future.NewHostFuture(a.DType(), make([]int64, a.Rank()))
	reg.Put(pf)
	return &addNode{
		base: base{
			guid: pf.Guid(), dtype: a.DType(), rank: a.Rank(), balanced: true,
			device: a.Device(), team: a.Team(), factory: FactoryAdd,
		},
		aGuid: aGuid, bGuid: bGuid, placeholder: pf,
	}, nil
}

func (n *addNode) Run() error {
	return &ddpt.ErrInvariantViolation{Msg: "addNode.Run: never declines JIT"}
}

func (n *addNode) Emit(b *ir.Module, dm *depmgr.Manager) (bool, error) {
	aSSA, err := dm.GetDependent(b, n.aGuid)
	if err != nil {
		return false, err
	}
	bSSA, err := dm.GetDependent(b, n.bGuid)
	if err != nil {
		return false, err
	}

	rt := n.resultType()
	irType, err := depmgr.SynthesizeType(rt)
	if err != nil {
		return false, err
	}
	ssa := b.Emit("add", []string{aSSA, bSSA}, irType, nil, nil)

	elemW := elemBytes(n.dtype)
	err = dm.AddValue(n.guid, ssa, rt, func(_ ddpt.Guid, pt future.PTensor) {
		n.placeholder.Deliver(pt, future.BytesFromMemref(pt.Data, elemW))
	})
	return false, err
}
