package symexec

import "github.com/symlift/symlift/pkg/solver"

// MemorySnapshot is Memory's serializable shadow: the entry list plus
// the two counters that make epoch and default-symbol numbering
// deterministic across a save/restore round trip. Memory itself keeps
// these fields unexported so nothing outside the package can mutate
// them out of band; Snapshot/RestoreMemory are the sanctioned door.
type MemorySnapshot struct {
	Namespace Namespace
	Strategy  Strategy
	Entries   []MemoryEntrySnapshot
	Epoch     uint32
	Defaults  uint64
}

// MemoryEntrySnapshot is one memoryEntry, exported for gob.
type MemoryEntrySnapshot struct {
	Addr  solver.Expr
	Value solver.Expr
	Epoch uint32
}

// Snapshot captures m's current contents. The solver handle is not
// part of the snapshot; a restore reattaches one explicitly, the same
// way a fresh Solver is constructed whenever a State is.
func (m *Memory) Snapshot() MemorySnapshot {
	entries := make([]MemoryEntrySnapshot, len(m.entries))
	for i, e := range m.entries {
		entries[i] = MemoryEntrySnapshot{Addr: e.addr, Value: e.value, Epoch: e.epoch}
	}
	return MemorySnapshot{
		Namespace: m.namespace,
		Strategy:  m.strategy,
		Entries:   entries,
		Epoch:     m.epoch,
		Defaults:  m.defaults,
	}
}

// RestoreMemory rebuilds a Memory from a snapshot, wiring it to sv.
func RestoreMemory(snap MemorySnapshot, sv *solver.Solver) *Memory {
	m := NewMemory(snap.Namespace, snap.Strategy, sv)
	m.epoch = snap.Epoch
	m.defaults = snap.Defaults
	m.entries = make([]memoryEntry, len(snap.Entries))
	for i, e := range snap.Entries {
		m.entries[i] = memoryEntry{addr: e.Addr, value: e.Value, epoch: e.Epoch}
	}
	return m
}

// StateSnapshot is State's serializable shadow: every field needed to
// resume execution except the Solver handle, which a caller reattaches
// on restore.
type StateSnapshot struct {
	Temps         map[int]solver.Expr
	Main          MemorySnapshot
	Regs          MemorySnapshot
	Symbols       map[Symbol]AbstractLocation
	Trace         []uint64
	IP            uint64
	StdinSymbols  uint64
	StdoutSymbols uint64
}

// Snapshot captures s's current contents.
func (s *State) Snapshot() StateSnapshot {
	temps := make(map[int]solver.Expr, len(s.Temps))
	for k, v := range s.Temps {
		temps[k] = v
	}
	symbols := make(map[Symbol]AbstractLocation, len(s.Symbols))
	for k, v := range s.Symbols {
		symbols[k] = v
	}
	return StateSnapshot{
		Temps:         temps,
		Main:          s.Main.Snapshot(),
		Regs:          s.Regs.Snapshot(),
		Symbols:       symbols,
		Trace:         append([]uint64(nil), s.Trace...),
		IP:            s.IP,
		StdinSymbols:  s.stdinSymbols,
		StdoutSymbols: s.stdoutSymbols,
	}
}

// Restore rebuilds a State from a snapshot, wiring both memories to sv.
func Restore(snap StateSnapshot, sv *solver.Solver) *State {
	return &State{
		Temps:         snap.Temps,
		Main:          RestoreMemory(snap.Main, sv),
		Regs:          RestoreMemory(snap.Regs, sv),
		Symbols:       snap.Symbols,
		Trace:         snap.Trace,
		IP:            snap.IP,
		Solver:        sv,
		stdinSymbols:  snap.StdinSymbols,
		stdoutSymbols: snap.StdoutSymbols,
	}
}
