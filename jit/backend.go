package jit

import "github.com/ddpt-project/ddpt/ir"

// CompiledFunc is one compiled (or interpreted) jit_main entry point, keyed
// into Engine's cache by the module's canonical-text sha1.
type CompiledFunc interface {
	// Invoke runs the function against flatInput (the packed argument
	// words produced by depmgr.Manager.StoreInputs, in argument order) and
	// returns the packed result words (in depmgr.Manager.HandleResult's
	// result order), ready for depmgr.Manager.Deliver.
	Invoke(flatInput []uint64) ([]uint64, error)

	// Close releases any resources the compiled artifact holds (a loaded
	// plugin handle, an mmap'd output arena). Safe to call more than once.
	Close() error
}

// Backend lowers one finished ir.Module into a CompiledFunc. Three
// implementations exist: execBackend (shells out to the configured
// external MLIR toolchain, the production path), farmBackend (sends the
// module to a remote internal/farm compile node) and vm (a structured
// interpreter over ir.Module's Op list, used by tests and anywhere no
// MLIR toolchain is installed — deterministic, and the only backend this
// repository can exercise without a real compiler present).
type Backend interface {
	Compile(mod *ir.Module, pipeline string) (CompiledFunc, error)
}
