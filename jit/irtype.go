package jit

import (
	"strconv"
	"strings"

	"github.com/ddpt-project/ddpt"
)

// elemInfo is the decoded {width, float} pair an IR element-type token
// ("f32", "f64", "i1", "i8", "i16", "i32", "i64") carries — the vm
// backend's own signless lowering, mirroring dtype.DType.Signless()
// without importing dtype (the vm never needs the dtype tag itself, only
// its IR-visible width/float-ness).
type elemInfo struct {
	width int
	float bool
}

func parseElem(tok string) (elemInfo, error) {
	switch tok {
	case "f32":
		return elemInfo{width: 32, float: true}, nil
	case "f64":
		return elemInfo{width: 64, float: true}, nil
	case "i1":
		return elemInfo{width: 1}, nil
	}
	if strings.HasPrefix(tok, "i") {
		if n, err := strconv.Atoi(tok[1:]); err == nil {
			return elemInfo{width: n}, nil
		}
	}
	return elemInfo{}, &ddpt.ErrInvariantViolation{Msg: "unparseable IR element type " + strconv.Quote(tok)}
}

// parsedType is the decoded shape of an IR type string as produced by
// depmgr.SynthesizeType: its rank, whether it carries the halo-triple
// distributed encoding, and its element's width/float-ness.
type parsedType struct {
	rank        int
	distributed bool
	elem        elemInfo
}

// parseIRType inverses depmgr.SynthesizeType well enough for the vm
// backend to decode argument/result descriptors without re-deriving a
// ResultType — it only needs rank, distributed-ness and element width.
func parseIRType(irType string) (parsedType, error) {
	switch {
	case strings.HasPrefix(irType, "!ptensor.scalar<"):
		elem, err := parseElem(firstToken(irType, "!ptensor.scalar<"))
		return parsedType{rank: 0, distributed: true, elem: elem}, err
	case strings.HasPrefix(irType, "!ptensor.array<"):
		body := strings.TrimPrefix(irType, "!ptensor.array<")
		rank, elemTok := countDims(body)
		elem, err := parseElem(elemTok)
		return parsedType{rank: rank, distributed: true, elem: elem}, err
	case strings.HasPrefix(irType, "memref<"):
		body := strings.TrimSuffix(strings.TrimPrefix(irType, "memref<"), ">")
		rank, elemTok := countDims(body)
		elem, err := parseElem(elemTok)
		return parsedType{rank: rank, elem: elem}, err
	default:
		return parsedType{}, &ddpt.ErrInvariantViolation{Msg: "unparseable IR type " + strconv.Quote(irType)}
	}
}

func firstToken(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	if i := strings.IndexAny(s, ",>"); i >= 0 {
		return s[:i]
	}
	return s
}

// countDims splits a "?x?x...ELEM" (or bare "ELEM") body into its
// dimension count and trailing element-type token.
func countDims(body string) (rank int, elemTok string) {
	if i := strings.Index(body, ","); i >= 0 {
		body = body[:i]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), ">")
	parts := strings.Split(body, "x")
	elemTok = parts[len(parts)-1]
	rank = len(parts) - 1
	return rank, elemTok
}
