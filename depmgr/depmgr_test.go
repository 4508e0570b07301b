package depmgr

import (
	"testing"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/registry"
)

// fakeFuture is a minimal future.Future used to control dtype/rank/team
// independently of future.HostFuture's host-only semantics.
type fakeFuture struct {
	guid   ddpt.Guid
	dtype  dtype.DType
	rank   int
	device ddpt.Device
	team   ddpt.Team
	words  []uint64
}

func (f *fakeFuture) Guid() ddpt.Guid     { return f.guid }
func (f *fakeFuture) DType() dtype.DType  { return f.dtype }
func (f *fakeFuture) Rank() int           { return f.rank }
func (f *fakeFuture) Device() ddpt.Device { return f.device }
func (f *fakeFuture) Team() ddpt.Team     { return f.team }
func (f *fakeFuture) Get() (interface{}, error) { return f, nil }
func (f *fakeFuture) AddToArgs(dst []uint64) ([]uint64, error) {
	return append(dst, f.words...), nil
}

func newFake(reg *registry.Registry, rank int, team ddpt.Team) *fakeFuture {
	f := &fakeFuture{guid: ddpt.NextGuid(), dtype: dtype.FLOAT32, rank: rank, team: team}
	f.words = make([]uint64, future.MemrefWords(rank))
	reg.Put(f)
	return f
}

func TestGetDependentBijection(t *testing.T) {
	reg := registry.New()
	f1 := newFake(reg, 2, 0)
	f2 := newFake(reg, 1, 0)

	dm := New(reg)
	b := ir.NewModule()

	ssa1, err := dm.GetDependent(b, f1.Guid())
	if err != nil {
		t.Fatal(err)
	}
	ssa1b, err := dm.GetDependent(b, f1.Guid())
	if err != nil {
		t.Fatal(err)
	}
	if ssa1 != ssa1b {
		t.Errorf("second GetDependent for the same guid returned a different value: %q vs %q", ssa1, ssa1b)
	}
	if _, err := dm.GetDependent(b, f2.Guid()); err != nil {
		t.Fatal(err)
	}

	if got, want := dm.NumArgs(), 2; got != want {
		t.Errorf("NumArgs() = %d, want %d (testable property #4: one arg per unbound dependency)", got, want)
	}
	if got, want := b.NumArgs(), 2; got != want {
		t.Errorf("b.NumArgs() = %d, want %d", got, want)
	}
}

func TestGetDependentUnknownGuid(t *testing.T) {
	reg := registry.New()
	dm := New(reg)
	b := ir.NewModule()
	_, err := dm.GetDependent(b, ddpt.Guid(99999))
	if err == nil {
		t.Fatal("expected UnknownGuid error")
	}
	var target *ddpt.ErrUnknownGuid
	if !asUnknownGuid(err, &target) {
		t.Errorf("error %v is not ErrUnknownGuid", err)
	}
}

func asUnknownGuid(err error, target **ddpt.ErrUnknownGuid) bool {
	e, ok := err.(*ddpt.ErrUnknownGuid)
	if ok {
		*target = e
	}
	return ok
}

func TestAddValueRejectsDuplicate(t *testing.T) {
	reg := registry.New()
	dm := New(reg)
	g := ddpt.NextGuid()
	rt := ResultType{DType: dtype.INT64, Rank: 1}
	if err := dm.AddValue(g, "%0", rt, func(ddpt.Guid, future.PTensor) {}); err != nil {
		t.Fatal(err)
	}
	err := dm.AddValue(g, "%1", rt, func(ddpt.Guid, future.PTensor) {})
	if err == nil {
		t.Fatal("expected InvariantViolation on duplicate add_value")
	}
	if _, ok := err.(*ddpt.ErrInvariantViolation); !ok {
		t.Errorf("wrong error type: %v", err)
	}
}

func TestHandleResultAndDeliverOrderAndSize(t *testing.T) {
	reg := registry.New()
	dm := New(reg)
	b := ir.NewModule()

	g1, g2 := ddpt.NextGuid(), ddpt.NextGuid()
	var delivered []ddpt.Guid
	rt1 := ResultType{DType: dtype.FLOAT32, Rank: 1}
	rt2 := ResultType{DType: dtype.INT64, Rank: 0}

	if err := dm.AddValue(g1, "%0", rt1, func(g ddpt.Guid, pt future.PTensor) {
		delivered = append(delivered, g)
	}); err != nil {
		t.Fatal(err)
	}
	if err := dm.AddValue(g2, "%1", rt2, func(g ddpt.Guid, pt future.PTensor) {
		delivered = append(delivered, g)
	}); err != nil {
		t.Fatal(err)
	}

	upperBound, err := dm.HandleResult(b)
	if err != nil {
		t.Fatal(err)
	}
	wantWords := future.PtensorWords(1, false) + future.PtensorWords(0, false)
	if upperBound != 2*wantWords {
		t.Errorf("HandleResult upper bound = %d, want %d", upperBound, 2*wantWords)
	}
	if len(b.Results()) != 2 {
		t.Fatalf("expected 2 declared results, got %d", len(b.Results()))
	}

	flat := make([]uint64, wantWords)
	dm.Deliver(flat)

	if len(delivered) != 2 || delivered[0] != g1 || delivered[1] != g2 {
		t.Errorf("delivery order = %v, want [%d %d] (testable property #1)", delivered, g1, g2)
	}
}

func TestDropIdempotentNoop(t *testing.T) {
	reg := registry.New()
	f := newFake(reg, 1, 0)
	dm := New(reg)

	dm.Drop(f.Guid())
	dm.Drop(f.Guid()) // must not panic or error (documented no-op policy)

	b := ir.NewModule()
	if _, err := dm.GetDependent(b, f.Guid()); err == nil {
		t.Fatal("expected UnknownGuid after drop removed the registry entry")
	}
}

func TestDistributedResultUsesHaloTripleWordCount(t *testing.T) {
	reg := registry.New()
	dm := New(reg)
	b := ir.NewModule()

	g := ddpt.NextGuid()
	rt := ResultType{DType: dtype.INT64, Rank: 1, Team: 7}
	if err := dm.AddValue(g, "%0", rt, func(ddpt.Guid, future.PTensor) {}); err != nil {
		t.Fatal(err)
	}
	upperBound, err := dm.HandleResult(b)
	if err != nil {
		t.Fatal(err)
	}
	want := 2 * future.PtensorWords(1, true)
	if upperBound != want {
		t.Errorf("upperBound = %d, want %d", upperBound, want)
	}
	irType := b.Results()[0].IRType
	if irType == "" {
		t.Fatal("empty result IR type")
	}
}
