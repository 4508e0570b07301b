package node

import (
	"testing"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/depmgr"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/registry"
)

// TestArangeFullAddCompose exercises seed scenario S1: both inputs are
// created inside the batch, so the compiled function takes zero
// arguments and returns one value.
func TestArangeFullAddCompose(t *testing.T) {
	reg := registry.New()
	a := Arange(reg, 0, 10, 1, dtype.INT64, 0)
	bN := Full(reg, []int64{10}, 1, dtype.INT64, 0)
	c, err := Add(reg, a.Guid(), bN.Guid())
	if err != nil {
		t.Fatal(err)
	}

	dm := depmgr.New(reg)
	mod := ir.NewModule()

	for _, n := range []Node{a, bN, c} {
		decline, err := n.Emit(mod, dm)
		if err != nil {
			t.Fatal(err)
		}
		if decline {
			t.Fatalf("node factory %d unexpectedly declined JIT", n.FactoryID())
		}
	}

	dm.Drop(a.Guid())
	dm.Drop(bN.Guid())

	if _, err := dm.StoreInputs(); err != nil {
		t.Fatal(err)
	}
	if got, want := mod.NumArgs(), 0; got != want {
		t.Errorf("mod.NumArgs() = %d, want %d", got, want)
	}

	upperBound, err := dm.HandleResult(mod)
	if err != nil {
		t.Fatal(err)
	}
	if upperBound <= 0 {
		t.Fatal("expected a positive upper bound on output size")
	}
	if got, want := len(mod.Results()), 1; got != want {
		t.Fatalf("len(Results()) = %d, want %d", got, want)
	}

	if got := mod.Ops()[0].Kind; got != "arange" {
		t.Errorf("first op kind = %q, want arange", got)
	}
	if got := mod.Ops()[1].Kind; got != "full" {
		t.Errorf("second op kind = %q, want full", got)
	}
	if got := mod.Ops()[2].Kind; got != "add" {
		t.Errorf("third op kind = %q, want add", got)
	}
}

// TestNegImportsExternalInput exercises seed scenario S2: x is already in
// the Registry (not produced in this batch), so neg(x) must import it as
// a function argument whose memref descriptor is exactly memref_words(2)
// words.
func TestNegImportsExternalInput(t *testing.T) {
	reg := registry.New()
	x := future.NewHostFuture(dtype.FLOAT32, []int64{3, 4})
	reg.Put(x)

	y, err := Neg(reg, x.Guid())
	if err != nil {
		t.Fatal(err)
	}

	dm := depmgr.New(reg)
	mod := ir.NewModule()
	if decline, err := y.Emit(mod, dm); err != nil || decline {
		t.Fatalf("Emit() = (%v, %v)", decline, err)
	}

	if got, want := mod.NumArgs(), 1; got != want {
		t.Fatalf("NumArgs() = %d, want %d", got, want)
	}

	buf, err := dm.StoreInputs()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(buf.Flat), future.MemrefWords(2); got != want {
		t.Errorf("store_inputs word count = %d, want %d", got, want)
	}
}

// TestAddDistributedUsesHaloTripleSize exercises seed scenario S3: the
// result upper-bound size for a distributed rank-1 input reflects the
// halo-triple encoding.
func TestAddDistributedUsesHaloTripleSize(t *testing.T) {
	reg := registry.New()
	u := future.NewHostFuture(dtype.INT64, []int64{8})
	reg.Put(u)
	// Re-register u under a distributed team by wrapping it in a fake so
	// resultTypeOf observes team != 0 without HostFuture needing a public
	// team-mutation method (HostFuture is deliberately team-0-only, per
	// its doc comment).
	reg.Del(u.Guid())
	distributedU := &distributedWrap{HostFuture: u, team: 7}
	reg.Put(distributedU)

	v, err := Add(reg, distributedU.Guid(), distributedU.Guid())
	if err != nil {
		t.Fatal(err)
	}

	dm := depmgr.New(reg)
	mod := ir.NewModule()
	if _, err := v.Emit(mod, dm); err != nil {
		t.Fatal(err)
	}
	upperBound, err := dm.HandleResult(mod)
	if err != nil {
		t.Fatal(err)
	}
	want := 2 * future.PtensorWords(1, true)
	if upperBound != want {
		t.Errorf("upperBound = %d, want %d", upperBound, want)
	}
}

type distributedWrap struct {
	*future.HostFuture
	team ddpt.Team
}

func (d *distributedWrap) Team() ddpt.Team { return d.team }

// TestHostPrintDeclinesJIT exercises seed scenario S6: HostPrint's Emit
// always returns true, signalling the scheduler to flush and run it
// eagerly.
func TestHostPrintDeclinesJIT(t *testing.T) {
	reg := registry.New()
	a := Arange(reg, 0, 3, 1, dtype.INT64, 0)
	p := HostPrint(reg, a.Guid())

	dm := depmgr.New(reg)
	mod := ir.NewModule()
	decline, err := p.Emit(mod, dm)
	if err != nil {
		t.Fatal(err)
	}
	if !decline {
		t.Fatal("HostPrint.Emit() should always decline JIT")
	}
	if len(mod.Ops()) != 0 {
		t.Fatal("HostPrint.Emit() must not mutate the module")
	}
}

// TestDropThenReferenceFails exercises seed scenario S5: after drop(g), a
// later batch that tries to resolve g raises UnknownGuid.
func TestDropThenReferenceFails(t *testing.T) {
	reg := registry.New()
	a := Arange(reg, 0, 3, 1, dtype.INT64, 0)
	reg.Del(a.Guid())

	if _, err := Neg(reg, a.Guid()); err == nil {
		t.Fatal("expected UnknownGuid after drop")
	}
}
