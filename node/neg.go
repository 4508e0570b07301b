package node

import (
	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/depmgr"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/registry"
)

// negNode computes the elementwise negation of a previously-registered
// array (seed scenario S2: an external input pulled into the batch as a
// function argument).
type negNode struct {
	base
	xGuid       ddpt.Guid
	placeholder *future.HostFuture
}

// Neg registers a node computing -x.
func Neg(reg *registry.Registry, xGuid ddpt.Guid) (Node, error) {
	x, err := reg.Get(xGuid)
	if err != nil {
		return nil, err
	}
	pf := future.NewHostFuture(x.DType(), make([]int64, x.Rank()))
	reg.Put(pf)
	return &negNode{
		base: base{
			guid: pf.Guid(), dtype: x.DType(), rank: x.Rank(), balanced: true,
			device: x.Device(), team: x.Team(), factory: FactoryNeg,
		},
		xGuid: xGuid, placeholder: pf,
	}, nil
}

func (n *negNode) Run() error {
	return &ddpt.ErrInvariantViolation{Msg: "negNode.Run: never declines JIT"}
}

func (n *negNode) Emit(b *ir.Module, dm *depmgr.Manager) (bool, error) {
	xSSA, err := dm.GetDependent(b, n.xGuid)
	if err != nil {
		return false, err
	}

	rt := n.resultType()
	irType, err := depmgr.SynthesizeType(rt)
	if err != nil {
		return false, err
	}
	ssa := b.Emit("neg", []string{xSSA}, irType, nil, nil)

	elemW := elemBytes(n.dtype)
	err = dm.AddValue(n.guid, ssa, rt, func(_ ddpt.Guid, pt future.PTensor) {
		n.placeholder.Deliver(pt, future.BytesFromMemref(pt.Data, elemW))
	})
	return false, err
}
