package future

import (
	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/dtype"
)

// Future is an opaque array handle: the core (Registry, scheduler,
// dependency manager) only ever needs these seven methods. Everything
// else — how the array's bytes are produced, how Get materializes an
// array implementation — belongs to a front-end, out of scope here.
type Future interface {
	Guid() ddpt.Guid
	DType() dtype.DType
	Rank() int
	Device() ddpt.Device
	Team() ddpt.Team

	// Get materializes the front-end's array implementation for this
	// future. Out of core scope beyond the signature; front-ends decide
	// what "materialize" means.
	Get() (interface{}, error)

	// AddToArgs appends this future's flat memref descriptor words (in
	// native-code ABI order) to dst and returns the extended slice. Used
	// by depmgr.Manager.StoreInputs when this future was imported as a
	// function argument.
	AddToArgs(dst []uint64) ([]uint64, error)
}

// HostFuture is the reference, host-memory, team-0 Future implementation
// used by tests and the CLI's demo front-end (package node). Real
// front-ends own their own array representation; this one exists only so
// the core has something concrete to schedule end to end.
type HostFuture struct {
	guid    ddpt.Guid
	dtype   dtype.DType
	shape   []int64
	strides []int64
	data    []byte
	device  ddpt.Device
	team    ddpt.Team
}

// NewHostFuture allocates a zero-filled host array of the given dtype and
// shape, assigns it a fresh guid, and returns the Future. It is not put
// in any Registry.
func NewHostFuture(d dtype.DType, shape []int64) *HostFuture {
	strides := rowMajorStrides(shape)
	width, _, _ := d.Signless()
	elemBytes := (width + 7) / 8
	n := int64(1)
	for _, s := range shape {
		n *= s
	}
	return &HostFuture{
		guid:    ddpt.NextGuid(),
		dtype:   d,
		shape:   append([]int64(nil), shape...),
		strides: strides,
		data:    make([]byte, n*int64(elemBytes)),
	}
}

func rowMajorStrides(shape []int64) []int64 {
	return RowMajorStrides(shape)
}

// RowMajorStrides computes the row-major (C order) stride vector for
// shape, exported for jit's vm backend, which synthesizes new arrays of
// a statically unknown rank at interpretation time.
func RowMajorStrides(shape []int64) []int64 {
	strides := make([]int64, len(shape))
	stride := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func (f *HostFuture) Guid() ddpt.Guid      { return f.guid }
func (f *HostFuture) DType() dtype.DType   { return f.dtype }
func (f *HostFuture) Rank() int            { return len(f.shape) }
func (f *HostFuture) Device() ddpt.Device  { return f.device }
func (f *HostFuture) Team() ddpt.Team      { return f.team }
func (f *HostFuture) Shape() []int64       { return f.shape }
func (f *HostFuture) Strides() []int64     { return f.strides }
func (f *HostFuture) Bytes() []byte        { return f.data }

// Get returns f itself. HostFuture has no richer array object;
// front-ends that need one build it from Bytes()/Shape().
func (f *HostFuture) Get() (interface{}, error) {
	return f, nil
}

// AddToArgs appends this array's memref descriptor words.
func (f *HostFuture) AddToArgs(dst []uint64) ([]uint64, error) {
	m := Memref{
		Allocated: hostPointer(f.data),
		Aligned:   hostPointer(f.data),
		Offset:    0,
		Sizes:     f.shape,
		Strides:   f.strides,
	}
	return EncodeMemref(dst, m), nil
}

// Deliver overwrites this future's contents from a decoded PTensor
// produced by depmgr.Manager.Deliver. HostFuture is local-only (team 0),
// so only Data is ever populated; distributed deliveries never target a
// HostFuture.
func (f *HostFuture) Deliver(pt PTensor, data []byte) {
	f.shape = pt.Data.Sizes
	f.strides = pt.Data.Strides
	f.data = data
}
