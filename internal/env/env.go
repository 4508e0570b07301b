// Package env captures details about the ddpt environment: every
// DDPT_*/MLIRROOT/IMEXROOT lookup lives here, mirroring the teacher's
// internal/env (one DistriRoot lookup) generalized to the full table
// spec.md §6 names. Inspect the resolved environment using `ddptd env`.
package env

import (
	"os"
	"strconv"
)

// MLIRRoot is the root directory an external MLIR toolchain was
// installed under, used to resolve default shared-library locations.
var MLIRRoot = os.Getenv("MLIRROOT")

// IMEXRoot is the root directory the Intel Extension for MLIR (GPU
// lowering) toolchain was installed under.
var IMEXRoot = os.Getenv("IMEXROOT")

// OptTool is the external pass-pipeline runner ($DDPT_OPT_TOOL), default
// "mlir-opt".
func OptTool() string {
	return stringOr("DDPT_OPT_TOOL", "mlir-opt")
}

// LLCTool is the external lowering-to-shared-object tool
// ($DDPT_LLC_TOOL), default "mlir-cpu-runner".
func LLCTool() string {
	return stringOr("DDPT_LLC_TOOL", "mlir-cpu-runner")
}

// Passes returns the DDPT_PASSES override, or "" if unset (meaning: use
// the built-in cpu/gpu pipeline).
func Passes() string {
	return os.Getenv("DDPT_PASSES")
}

// UseGPUSet reports whether DDPT_USE_GPU was set at all (distinguishing
// "unset, auto-detect" from "explicitly false").
func UseGPUSet() bool {
	_, ok := os.LookupEnv("DDPT_USE_GPU")
	return ok
}

// UseGPU reports the DDPT_USE_GPU value; only meaningful when
// UseGPUSet() is true.
func UseGPU() bool {
	return os.Getenv("DDPT_USE_GPU") != ""
}

// UseCache reports whether the JIT cache is enabled. Unset means on; when
// set, only the truthy spellings ("1"|"y"|"Y"|"on"|"ON") mean on and any
// other value, including the empty string, means off.
func UseCache() bool {
	v, ok := os.LookupEnv("DDPT_USE_CACHE")
	if !ok {
		return true
	}
	switch v {
	case "1", "y", "Y", "on", "ON":
		return true
	default:
		return false
	}
}

// OptLevel parses DDPT_OPT_LEVEL (default 2), returning an error for an
// out-of-range or unparseable value — spec.md: "invalid ⇒ fatal".
func OptLevel() (int, error) {
	v := os.Getenv("DDPT_OPT_LEVEL")
	if v == "" {
		return 2, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 3 {
		return 0, &InvalidOptLevelError{Value: v}
	}
	return n, nil
}

// InvalidOptLevelError reports a DDPT_OPT_LEVEL value outside [0,3].
type InvalidOptLevelError struct{ Value string }

func (e *InvalidOptLevelError) Error() string {
	return "invalid DDPT_OPT_LEVEL " + strconv.Quote(e.Value) + ": want an integer in [0,3]"
}

// Verbose parses DDPT_VERBOSE (default 0). Thresholds, per spec.md §6:
// 1 echo pipeline, 2 dump module pre-lowering, 3 enable pass timing +
// dump post-lowering, 4 enable IR printing between passes.
func Verbose() int {
	n, _ := strconv.Atoi(os.Getenv("DDPT_VERBOSE"))
	if n < 0 {
		return 0
	}
	return n
}

// IdtrSO resolves the distributed runtime shared library path.
func IdtrSO() string {
	return stringOr("DDPT_IDTR_SO", "libidtr.so")
}

// GpuxSO resolves the GPU runtime shared library path, falling back to
// IMEXRoot's packaged level-zero runtime.
func GpuxSO() string {
	if v := os.Getenv("DDPT_GPUX_SO"); v != "" {
		return v
	}
	return IMEXRoot + "/lib/liblevel-zero-runtime.so"
}

// FarmAddr is the internal/farm gRPC address Compile should dispatch to
// instead of running tools locally, or "" for local-only compilation.
func FarmAddr() string {
	return os.Getenv("DDPT_FARM_ADDR")
}

// Listen is the host:port for the optional HTTP debug endpoint.
func Listen() string {
	return os.Getenv("DDPT_LISTEN")
}

func stringOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
