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

// arangeNode creates a 1-D array from a literal (start, stop, step)
// range. Its output shape is known at construction time, so a zero-filled
// placeholder future can be registered immediately and overwritten in
// place once the batch executes (seed scenario S1).
type arangeNode struct {
	base
	start, stop, step int64
	placeholder       *future.HostFuture
}

// Arange registers a new array-returning node computing
// range(start, stop, step) and returns it, already queued into reg under
// a fresh guid per the "a node's guid is in the Registry from the moment
// it is queued" invariant.
func Arange(reg *registry.Registry, start, stop, step int64, d dtype.DType, team ddpt.Team) Node {
	n := ArangeLen(start, stop, step)
	pf := future.NewHostFuture(d, []int64{n})
	reg.Put(pf)
	return &arangeNode{
		base: base{
			guid: pf.Guid(), dtype: d, rank: 1, balanced: true, team: team,
			factory: FactoryArange,
		},
		start: start, stop: stop, step: step,
		placeholder: pf,
	}
}

// ArangeLen computes the element count of range(start, stop, step), the
// same rule Python's builtin uses: ceil((stop-start)/step) for a positive
// step, clamped to 0 for an empty or reversed range.
func ArangeLen(start, stop, step int64) int64 {
	if step == 0 {
		return 0
	}
	n := (stop - start) / step
	if (stop-start)%step != 0 && (stop-start > 0) == (step > 0) {
		n++
	}
	if n < 0 {
		return 0
	}
	return n
}

func (n *arangeNode) Run() error {
	return &ddpt.ErrInvariantViolation{Msg: "arangeNode.Run: never declines JIT"}
}

func (n *arangeNode) Emit(b *ir.Module, dm *depmgr.Manager) (bool, error) {
	shape := []int64{ArangeLen(n.start, n.stop, n.step)}
	rt := n.resultType()
	irType, err := depmgr.SynthesizeType(rt)
	if err != nil {
		return false, err
	}
	attrs := map[string]string{
		"start": fmt.Sprintf("%d", n.start),
		"stop":  fmt.Sprintf("%d", n.stop),
		"step":  fmt.Sprintf("%d", n.step),
	}
	ssa := b.Emit("arange", nil, irType, attrs, shape)

	elemW := elemBytes(n.dtype)
	err = dm.AddValue(n.guid, ssa, rt, func(_ ddpt.Guid, pt future.PTensor) {
		n.placeholder.Deliver(pt, future.BytesFromMemref(pt.Data, elemW))
	})
	return false, err
}
