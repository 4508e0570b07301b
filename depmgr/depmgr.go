// Package depmgr is the per-compilation dependency manager (spec.md
// §4.3): it threads a batch's deferred nodes into a single compiled
// function body, synthesizing arguments for inputs that weren't produced
// earlier in the same batch, collecting the return tuple, and delivering
// results back to their owning futures once the batch has executed.
package depmgr

import (
	"fmt"

	"github.com/ddpt-project/ddpt"
	"github.com/ddpt-project/ddpt/future"
	"github.com/ddpt-project/ddpt/ir"
	"github.com/ddpt-project/ddpt/registry"
)

// DeliveryFunc receives a result guid's decoded output once the batch has
// executed.
type DeliveryFunc func(guid ddpt.Guid, pt future.PTensor)

// ReadyFunc fires once per guid, after every delivery in a batch — even
// for guids that produced no returned value.
type ReadyFunc func(guid ddpt.Guid)

type argEntry struct {
	guid   ddpt.Guid
	future future.Future
}

type ivmEntry struct {
	guid ddpt.Guid
	ssa  string
	meta ResultType
	live bool
}

type resultMeta struct {
	rank        int
	distributed bool
}

// Manager is the per-batch dependency-manager state: spec.md's ivm, args,
// icm, icr and irm, realized as one struct disposed at the end of a
// batch (spec.md §4.3 "Lifecycle").
type Manager struct {
	reg *registry.Registry

	ivm      []ivmEntry
	ivmIndex map[ddpt.Guid]int

	args []argEntry

	icm map[ddpt.Guid]DeliveryFunc
	icr map[ddpt.Guid][]ReadyFunc
	irm map[ddpt.Guid]resultMeta

	current   ddpt.Guid
	observeFn func(from, to ddpt.Guid)
}

// New opens a fresh per-batch Manager against the process-wide registry.
func New(reg *registry.Registry) *Manager {
	return &Manager{
		reg:      reg,
		ivmIndex: make(map[ddpt.Guid]int),
		icm:      make(map[ddpt.Guid]DeliveryFunc),
		icr:      make(map[ddpt.Guid][]ReadyFunc),
		irm:      make(map[ddpt.Guid]resultMeta),
	}
}

// Observe registers cb to fire once per GetDependent call, as (current,
// guid), where current is whatever guid SetCurrent last recorded. Used
// only by the scheduler's DDPT_VERBOSE>=2 diagnostic topo.Sort
// acyclicity assertion (SPEC_FULL.md §4.2); never consulted
// by GetDependent's own resolution logic.
func (m *Manager) Observe(cb func(from, to ddpt.Guid)) {
	m.observeFn = cb
}

// SetCurrent records which node's guid is about to call Emit, so a
// subsequent GetDependent call can report the edge to Observe's callback.
func (m *Manager) SetCurrent(guid ddpt.Guid) {
	m.current = guid
}

// GetDependent resolves guid to an SSA value usable in the function body
// being built with b. If guid was already produced inside this batch, its
// recorded value is returned. Otherwise guid must be a live Registry
// entry; its future's type is synthesized into a fresh function argument
// appended to b, and (guid, future) is recorded in args for StoreInputs.
func (m *Manager) GetDependent(b *ir.Module, guid ddpt.Guid) (string, error) {
	if m.observeFn != nil {
		m.observeFn(m.current, guid)
	}
	if idx, ok := m.ivmIndex[guid]; ok && m.ivm[idx].live {
		return m.ivm[idx].ssa, nil
	}

	f, err := m.reg.Get(guid)
	if err != nil {
		return "", err
	}

	rt := resultTypeOf(f)
	irType, err := SynthesizeType(rt)
	if err != nil {
		return "", err
	}

	ssa := b.AddArg(irType)
	m.args = append(m.args, argEntry{guid: guid, future: f})
	m.ivmIndex[guid] = len(m.ivm)
	m.ivm = append(m.ivm, ivmEntry{guid: guid, ssa: ssa, meta: rt, live: true})
	return ssa, nil
}

// AddValue records that guid's value inside the function body is ssa,
// with a delivery callback to invoke once the batch executes. guid must
// not already be live in ivm — violating that is a programming error
// (ErrInvariantViolation), per spec.md's node invariant "if emit
// registers a value with DM, it MUST also register a delivery callback"
// implying a node produces each of its guids' values exactly once.
func (m *Manager) AddValue(guid ddpt.Guid, ssa string, rt ResultType, cb DeliveryFunc) error {
	if idx, ok := m.ivmIndex[guid]; ok && m.ivm[idx].live {
		return &ddpt.ErrInvariantViolation{Msg: fmt.Sprintf("add_value: guid %d already live", guid)}
	}
	m.ivmIndex[guid] = len(m.ivm)
	m.ivm = append(m.ivm, ivmEntry{guid: guid, ssa: ssa, meta: rt, live: true})
	m.icm[guid] = cb
	return nil
}

// AddReady registers cb to fire once per batch execution, after every
// delivery, regardless of whether guid appears among the results.
func (m *Manager) AddReady(guid ddpt.Guid, cb ReadyFunc) {
	m.icr[guid] = append(m.icr[guid], cb)
}

// Drop releases guid: it stops being live in this batch's ivm (if it was
// ever produced there), its delivery/ready callbacks are discarded, and it
// is removed from the Registry. A second Drop of the same guid is a
// documented no-op (DESIGN.md "Open-question decisions"): every map this
// touches deletes idempotently in Go, so there is nothing to double-free.
func (m *Manager) Drop(guid ddpt.Guid) {
	if idx, ok := m.ivmIndex[guid]; ok {
		m.ivm[idx].live = false
		delete(m.ivmIndex, guid)
	}
	delete(m.icm, guid)
	delete(m.icr, guid)
	delete(m.irm, guid)
	m.reg.Del(guid)
}

// InputBuffer is the flat words array produced by StoreInputs, plus the
// starting word offset of each argument's descriptor within it. The JIT
// engine computes &Flat[Offsets[i]] for each i to build the packed ABI
// argument vector (spec.md §6 "Argument vector layout").
type InputBuffer struct {
	Flat    []uint64
	Offsets []int
}

// StoreInputs materializes every imported dependency's memref descriptor
// words into one flat buffer, in args order (matching the declared
// function argument order, testable property #1). It clears the
// corresponding ivm entries — an imported argument needs no delivery —
// and releases the held futures. The scheduler's batch flush calls it
// once, before HandleResult, so that HandleResult's ivm walk only sees
// genuinely-produced values.
func (m *Manager) StoreInputs() (InputBuffer, error) {
	buf := InputBuffer{Offsets: make([]int, len(m.args))}
	for i, a := range m.args {
		buf.Offsets[i] = len(buf.Flat)
		words, err := a.future.AddToArgs(buf.Flat)
		if err != nil {
			return InputBuffer{}, ddpt.Wrap(fmt.Sprintf("store_inputs: guid %d", a.guid), err)
		}
		buf.Flat = words
		if idx, ok := m.ivmIndex[a.guid]; ok {
			m.ivm[idx].live = false
			delete(m.ivmIndex, a.guid)
		}
	}
	m.args = nil
	return buf, nil
}

// HandleResult walks the surviving (live) ivm entries in insertion order,
// appending each to b's return list and recording its (rank,
// is_distributed) pair in irm for Deliver to use later. It returns
// 2*total_words as the caller-facing upper bound on the output buffer
// size (spec.md §9 open question); Deliver itself never relies on the
// factor of 2, only on the exact per-result counts captured here.
func (m *Manager) HandleResult(b *ir.Module) (int, error) {
	total := 0
	for _, e := range m.ivm {
		if !e.live {
			continue
		}
		irType, err := SynthesizeType(e.meta)
		if err != nil {
			return 0, err
		}
		b.AddResult(e.ssa, irType)
		dist := e.meta.Distributed()
		m.irm[e.guid] = resultMeta{rank: e.meta.Rank, distributed: dist}
		total += future.PtensorWords(e.meta.Rank, dist)
	}
	return 2 * total, nil
}

// Deliver walks the surviving ivm entries in the same order HandleResult
// used, slicing each result's exact word count (via irm) off flatOutput
// and invoking its delivery callback. After every result is delivered, it
// fires every registered ready callback, including those for guids that
// produced no returned value.
func (m *Manager) Deliver(flatOutput []uint64) {
	off := 0
	for _, e := range m.ivm {
		if !e.live {
			continue
		}
		rm := m.irm[e.guid]
		pt, n := future.DecodePTensor(flatOutput[off:], rm.rank, rm.distributed)
		off += n
		if cb, ok := m.icm[e.guid]; ok {
			cb(e.guid, pt)
		}
	}
	for guid, cbs := range m.icr {
		for _, cb := range cbs {
			cb(guid)
		}
	}
}

// NumArgs reports how many dependencies were imported as arguments in
// this batch since the last StoreInputs, which resets the count to 0 —
// used by tests asserting the argument/dependency bijection (testable
// property #4).
func (m *Manager) NumArgs() int { return len(m.args) }
