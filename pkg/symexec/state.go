package symexec

import (
	"fmt"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/microcode"
	"github.com/symlift/symlift/pkg/num"
	"github.com/symlift/symlift/pkg/solver"
)

// the two memory spaces microcode.Location addresses by number.
const (
	spaceMain = 0
	spaceRegs = 1
)

// State is the symbolic execution state: the temporaries, the two
// memory spaces, per-symbol provenance, the call trace, the current
// instruction pointer and the shared solver handle. A State's Memory
// fields use the mutating-read strategy: reads may append a
// default-symbol entry, so a State must not be shared between
// goroutines that step it concurrently. Forking a State for path
// exploration means cloning it wholesale first.
type State struct {
	Temps  map[int]solver.Expr
	Main   *Memory // space 0
	Regs   *Memory // space 1
	Symbols map[Symbol]AbstractLocation
	Trace  []uint64
	IP     uint64
	Solver *solver.Solver

	stdinSymbols  uint64
	stdoutSymbols uint64
}

// NewState returns a blank state using mainStrategy for main memory.
// The register file always uses PerfectMatches, since register
// addresses are always concrete.
func NewState(mainStrategy Strategy, sv *solver.Solver) *State {
	return &State{
		Temps:   make(map[int]solver.Expr),
		Main:    NewMemory(NamespaceMem, mainStrategy, sv),
		Regs:    NewMemory(NamespaceReg, PerfectMatches, sv),
		Symbols: make(map[Symbol]AbstractLocation),
		Solver:  sv,
	}
}

// Clone returns a deep copy of s, suitable for forking at a Jump event:
// the two states share nothing mutable afterwards, only the solver
// handle.
func (s *State) Clone() *State {
	clone := &State{
		Temps:         make(map[int]solver.Expr, len(s.Temps)),
		Main:          s.Main.clone(),
		Regs:          s.Regs.clone(),
		Symbols:       make(map[Symbol]AbstractLocation, len(s.Symbols)),
		Trace:         append([]uint64(nil), s.Trace...),
		IP:            s.IP,
		Solver:        s.Solver,
		stdinSymbols:  s.stdinSymbols,
		stdoutSymbols: s.stdoutSymbols,
	}
	for k, v := range s.Temps {
		clone.Temps[k] = v
	}
	for k, v := range s.Symbols {
		clone.Symbols[k] = v
	}
	return clone
}

func (m *Memory) clone() *Memory {
	clone := &Memory{
		namespace: m.namespace,
		strategy:  m.strategy,
		solver:    m.solver,
		entries:   append([]memoryEntry(nil), m.entries...),
		epoch:     m.epoch,
		defaults:  m.defaults,
	}
	return clone
}

// GetTemp returns the current value of a temporary, panicking if its
// recorded width disagrees with the stored expression's — a
// programmer error.
func (s *State) GetTemp(t microcode.Temporary) solver.Expr {
	expr, ok := s.Temps[t.Index]
	if !ok {
		panic(fmt.Sprintf("symexec: read of uninitialized temporary T%d", t.Index))
	}
	if expr.Width != t.Width {
		panic(fmt.Sprintf("symexec: get_temp: incompatible widths for T%d: have %s, want %s", t.Index, expr.Width, t.Width))
	}
	return expr
}

// SetTemp rebinds a temporary to a new value.
func (s *State) SetTemp(t microcode.Temporary, value solver.Expr) {
	if value.Width != t.Width {
		panic(fmt.Sprintf("symexec: set_temp: incompatible widths for T%d: have %s, want %s", t.Index, value.Width, t.Width))
	}
	s.Temps[t.Index] = value
}

// GetReg reads a register's full-width value out of the register file.
func (s *State) GetReg(reg amd64.Register) solver.Expr {
	return s.Regs.ReadDirect(reg.Address(), reg.Width())
}

// SetReg writes a register's full-width value into the register file.
func (s *State) SetReg(reg amd64.Register, value solver.Expr) {
	s.Regs.WriteDirect(reg.Address(), value)
}

// ReadLocation retrieves the value at a microcode.Location.
func (s *State) ReadLocation(loc microcode.Location) solver.Expr {
	switch loc.Kind {
	case microcode.LocTemp:
		return s.GetTemp(loc.AsTemp())
	case microcode.LocDirect:
		return s.memory(loc.Space).ReadDirect(loc.Address, loc.Width)
	case microcode.LocIndirect:
		addr := s.GetTemp(loc.AddrTemp)
		if addr.Width != num.N64 {
			panic("symexec: read_location: indirect address must be n64")
		}
		return s.memory(loc.Space).ReadExpr(addr, loc.Width)
	default:
		panic("symexec: read_location: unknown location kind")
	}
}

// WriteLocation stores value at a microcode.Location. The location's
// and value's widths must agree; disagreement is a programmer error.
func (s *State) WriteLocation(loc microcode.Location, value solver.Expr) {
	if loc.Width != value.Width {
		panic(fmt.Sprintf("symexec: write_location: incompatible widths: location %s, value %s", loc.Width, value.Width))
	}
	switch loc.Kind {
	case microcode.LocTemp:
		s.Temps[loc.Index] = value
	case microcode.LocDirect:
		s.memory(loc.Space).WriteDirect(loc.Address, value)
	case microcode.LocIndirect:
		addr := s.GetTemp(loc.AddrTemp)
		if addr.Width != num.N64 {
			panic("symexec: write_location: indirect address must be n64")
		}
		s.memory(loc.Space).WriteExpr(addr, value)
	default:
		panic("symexec: write_location: unknown location kind")
	}
}

func (s *State) memory(space int) *Memory {
	if space == spaceMain {
		return s.Main
	}
	return s.Regs
}

// Track maintains the call trace: call pushes the call-site address,
// ret pops it, everything else leaves it unchanged.
func (s *State) Track(inst amd64.Instruction, addr uint64) {
	switch inst.Mnemonic {
	case amd64.Call:
		s.Trace = append(s.Trace, addr)
	case amd64.Ret:
		if len(s.Trace) > 0 {
			s.Trace = s.Trace[:len(s.Trace)-1]
		}
	}
}

// comparisonResult applies the comparison's carried binary operator to
// its two operand temporaries' live expressions.
func (s *State) comparisonResult(cmp microcode.Comparison) solver.Expr {
	a := s.GetTemp(cmp.A)
	b := s.GetTemp(cmp.B)
	switch cmp.Kind {
	case microcode.CmpAdd:
		return solver.Add(a, b)
	case microcode.CmpSub:
		return solver.Sub(a, b)
	case microcode.CmpMul:
		return solver.Mul(a, b)
	case microcode.CmpAnd:
		return solver.And(a, b)
	default:
		panic("symexec: unknown comparison kind")
	}
}

// EvaluateCondition translates a microcode.Condition into a
// solver.Condition over the temporaries' live expressions. True is
// unconditional. Equal tests the comparison's
// result against zero. Greater/Less only have the algebra's equality
// primitive to work with, so they're built from it: a comparison's
// sign bit (most significant bit of its result, at the comparison's
// width) is zero exactly when the result is non-negative, which is
// enough to express signed ordering against zero without a relational
// primitive.
func (s *State) EvaluateCondition(c microcode.Condition) solver.Condition {
	if c.Kind == microcode.CondTrue {
		return solver.True()
	}
	result := s.comparisonResult(c.Comparison)
	width := result.Width
	zero := solver.Const(width, 0)
	signMask := solver.Const(width, uint64(1)<<uint(width.Bits()-1))
	signBit := solver.And(result, signMask)
	negative := solver.Ne(signBit, solver.Const(width, 0))

	switch c.Kind {
	case microcode.CondEqual:
		return solver.Eq(result, zero)
	case microcode.CondLess:
		return negative
	case microcode.CondGreater:
		return solver.Eq(signBit, solver.Const(width, 0)).And(solver.Ne(result, zero))
	default:
		panic("symexec: unknown condition kind")
	}
}

// SymbolMapFor returns the subset of the symbol provenance table
// reachable from condition, for reporting which concrete inputs a
// branch condition depends on.
func (s *State) SymbolMapFor(condition solver.Condition) map[Symbol]AbstractLocation {
	out := make(map[Symbol]AbstractLocation)
	var walk func(solver.Condition)
	walk = func(c solver.Condition) {
		switch c.Kind {
		case solver.CondEq, solver.CondNe:
			s.collectSymbolLocations(c.A, out)
			s.collectSymbolLocations(c.B, out)
		case solver.CondAnd, solver.CondOr:
			walk(*c.L)
			walk(*c.R)
		case solver.CondNot:
			walk(*c.L)
		}
	}
	walk(condition)
	return out
}

func (s *State) collectSymbolLocations(e solver.Expr, out map[Symbol]AbstractLocation) {
	solver.Walk(e, func(node solver.Expr) {
		if node.Kind != solver.ExprSymbol {
			return
		}
		for sym, loc := range s.Symbols {
			if sym.id() == node.Symbol {
				out[sym] = loc
			}
		}
	})
}

// GetAccessForLocation returns the symbolic address and width of a
// Storage, or false if it names a register (no memory access at all).
func (s *State) GetAccessForLocation(loc Storage) (TypedMemoryAccess, bool) {
	if loc.Direct {
		return TypedMemoryAccess{}, false
	}
	addr := s.GetReg(loc.Base)
	if loc.HasDisp {
		addr = solver.Add(addr, solver.Const(num.N64, uint64(loc.Disp)))
	}
	return TypedMemoryAccess{Addr: addr, Width: loc.Width}, true
}

// Step executes one micro-operation at addr, updating the instruction
// pointer register and possibly returning an observable Event.
func (s *State) Step(addr uint64, op microcode.MicroOperation) *Event {
	s.SetReg(amd64.RIP, solver.Const(num.N64, addr))
	s.IP = addr

	switch op.Kind {
	case microcode.OpMov:
		if op.Dest.Width != op.Src.Width {
			panic("symexec: step: mov with incompatible widths")
		}
		s.WriteLocation(op.Dest, s.ReadLocation(op.Src))

	case microcode.OpConst:
		s.SetTemp(op.ConstDest, solver.Const(op.Constant.Width, op.Constant.Bits))

	case microcode.OpCast:
		cur := s.GetTemp(op.CastTarget)
		next := solver.Cast(cur, op.CastNew, op.CastSigned)
		s.SetTemp(microcode.Temporary{Width: op.CastNew, Index: op.CastTarget.Index}, next)

	case microcode.OpAdd:
		s.SetTemp(op.BinDest, solver.Add(s.GetTemp(op.BinA), s.GetTemp(op.BinB)))
	case microcode.OpSub:
		s.SetTemp(op.BinDest, solver.Sub(s.GetTemp(op.BinA), s.GetTemp(op.BinB)))
	case microcode.OpMul:
		s.SetTemp(op.BinDest, solver.Mul(s.GetTemp(op.BinA), s.GetTemp(op.BinB)))
	case microcode.OpAnd:
		s.SetTemp(op.BinDest, solver.And(s.GetTemp(op.BinA), s.GetTemp(op.BinB)))
	case microcode.OpOr:
		s.SetTemp(op.BinDest, solver.Or(s.GetTemp(op.BinA), s.GetTemp(op.BinB)))
	case microcode.OpNot:
		s.SetTemp(op.NotDest, solver.Not(s.GetTemp(op.NotA)))

	case microcode.OpSet:
		cond := s.EvaluateCondition(op.SetCondition)
		one := solver.Const(op.SetTarget.Width, 1)
		zero := solver.Const(op.SetTarget.Width, 0)
		value := solver.ITE(cond, one, zero)
		if len(solver.Symbols(value)) == 0 {
			value = solver.Const(op.SetTarget.Width, solver.Eval(value, nil).Bits)
		}
		s.SetTemp(op.SetTarget, value)

	case microcode.OpJump:
		return &Event{
			Kind:          EventJump,
			JumpTarget:    s.GetTemp(op.JumpTarget),
			JumpCondition: s.EvaluateCondition(op.JumpCondition),
			JumpRelative:  op.JumpRelative,
		}

	case microcode.OpSyscall:
		rax := s.GetReg(amd64.RAX)
		if rax.Kind != solver.ExprConst {
			panic("symexec: step: syscall with symbolic syscall number")
		}
		return s.doSyscall(rax.Value)

	default:
		panic("symexec: step: unknown micro-operation kind")
	}

	return nil
}
