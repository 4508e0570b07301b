package node

import (
	"fmt"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/depmgr"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/registry"
)

// fullNode creates an array of the given shape with every element set to
// a literal fill value.
type fullNode struct {
	base
	shape       []int64
	fill        float64
	placeholder *future.HostFuture
}

// Full registers a new array-returning node filling shape with fill and
// returns it, queued under a fresh guid.
func Full(reg *registry.Registry, shape []int64, fill float64, d dtype.DType, team ddpt.Team) Node {
	pf := future.NewHostFuture(d, shape)
	reg.Put(pf)
	return &fullNode{
		base: base{
			guid: pf.Guid(), dtype: d, rank: len(shape), balanced: true, team: team,
			factory: FactoryFull,
		},
		shape: append([]int64(nil), shape...), fill: fill,
		placeholder: pf,
	}
}

func (n *fullNode) Run() error {
	return &ddpt.ErrInvariantViolation{Msg: "fullNode.Run: never declines JIT"}
}

func (n *fullNode) Emit(b *ir.Module, dm *depmgr.Manager) (bool, error) {
	rt := n.resultType()
	irType, err := depmgr.SynthesizeType(rt)
	if err != nil {
		return false, err
	}
	attrs := map[string]string{"value": fmt.Sprintf("%v", n.fill)}
	ssa := b.Emit("full", nil, irType, attrs, n.shape)

	elemW := elemBytes(n.dtype)
	err = dm.AddValue(n.guid, ssa, rt, func(_ ddpt.Guid, pt future.PTensor) {
		n.placeholder.Deliver(pt, future.BytesFromMemref(pt.Data, elemW))
	})
	return false, err
}
