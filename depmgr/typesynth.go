package depmgr

import (
	"fmt"
	"strings"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/dtype"
	"github.com/ddpt-project/ddpt/future"
)

// ResultType is the {dtype, rank, device, team} tuple spec.md's "type
// synthesis" section needs to pick an unbound input's (or a produced
// value's) compiler IR type. It is deliberately the same shape as
// future.Future's identity methods, because a produced value is exactly
// what gets wrapped into a Future once delivered.
type ResultType struct {
	DType  dtype.DType
	Rank   int
	Device ddpt.Device
	Team   ddpt.Team
}

func resultTypeOf(f future.Future) ResultType {
	return ResultType{DType: f.DType(), Rank: f.Rank(), Device: f.Device(), Team: f.Team()}
}

// Distributed reports whether this type carries the halo-triple memref
// layout on the wire, i.e. team != 0 and rank > 0. A rank-0 distributed
// scalar is encoded (and delivered) like a local value — spec.md §4.3
// "memref decoding".
func (rt ResultType) Distributed() bool {
	return rt.Team.Distributed() && rt.Rank > 0
}

// SynthesizeType renders rt's compiler IR type per spec.md §4.3 "Type
// synthesis": signless element type always; distributed array type (with
// an environment attribute naming the team and, if set, the device) when
// team != 0 and rank > 0; a 0-rank distributed scalar type when team != 0
// and rank == 0; otherwise a plain local array type. Exported so that
// node constructors can synthesize the result type of the op they emit,
// matching the type depmgr.Manager.HandleResult will independently
// synthesize for the same guid at batch finalization.
func SynthesizeType(rt ResultType) (string, error) {
	elem, err := rt.DType.IRType()
	if err != nil {
		return "", err
	}

	env := ""
	if rt.Team.Distributed() {
		env = fmt.Sprintf("distributed(%d)", rt.Team)
		if rt.Device != "" {
			env += fmt.Sprintf(", gpu(%s)", rt.Device)
		}
	}

	switch {
	case rt.Team.Distributed() && rt.Rank == 0:
		return fmt.Sprintf("!ptensor.scalar<%s, {%s}>", elem, env), nil
	case rt.Team.Distributed() && rt.Rank > 0:
		dims := strings.Repeat("?x", rt.Rank)
		return fmt.Sprintf("!ptensor.array<%s%s, {%s}>", dims, elem, env), nil
	case rt.Rank == 0:
		return fmt.Sprintf("memref<%s>", elem), nil
	default:
		dims := strings.Repeat("?x", rt.Rank)
		return fmt.Sprintf("memref<%s%s>", dims, elem), nil
	}
}
