package node

import (
	"fmt"
	"log"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/depmgr"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/registry"
)

// hostPrintNode is the eager-fallback demo node (seed scenario S6): its
// Emit always declines JIT, so the scheduler flushes whatever preceded it,
// runs this node eagerly, and reopens a fresh module for whatever follows.
// It produces no array of its own (guid is ddpt.NoGuid).
type hostPrintNode struct {
	base
	guidToPrint ddpt.Guid
	reg         *registry.Registry
}

// HostPrint registers a node that, when run, logs the current contents of
// the array registered under guid. It never participates in JIT.
func HostPrint(reg *registry.Registry, guid ddpt.Guid) Node {
	return &hostPrintNode{
		base:        base{guid: ddpt.NoGuid, factory: FactoryHostPrint},
		guidToPrint: guid,
		reg:         reg,
	}
}

func (n *hostPrintNode) Run() error {
	f, err := n.reg.Get(n.guidToPrint)
	if err != nil {
		return ddpt.Wrap("HostPrint", err)
	}
	log.Printf("ddpt: guid=%d dtype=%s rank=%d team=%d", f.Guid(), f.DType(), f.Rank(), f.Team())
	if hf, ok := f.(interface{ Bytes() []byte }); ok {
		fmt.Printf("%x\n", hf.Bytes())
	}
	return nil
}

func (n *hostPrintNode) Emit(b *ir.Module, dm *depmgr.Manager) (bool, error) {
	return true, nil
}
