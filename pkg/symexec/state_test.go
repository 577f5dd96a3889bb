package symexec

import (
	"testing"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/microcode"
	"github.com/symlift/symlift/pkg/num"
	"github.com/symlift/symlift/pkg/solver"
)

func stepAll(t *testing.T, s *State, addr uint64, code microcode.Microcode) []*Event {
	t.Helper()
	var events []*Event
	for _, op := range code.Ops {
		if ev := s.Step(addr, op); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

// mov eax, 0x3c ; syscall must emit exactly one Exit event and no
// others.
func TestStepMovThenSyscallExitsOnce(t *testing.T) {
	enc := microcode.NewEncoder()
	for _, bytes := range [][]byte{
		{0x48, 0xc7, 0xc0, 0x3c, 0x00, 0x00, 0x00}, // mov rax, 0x3c
		{0x0f, 0x05},                               // syscall
	} {
		inst, n, err := amd64.Decode(bytes)
		if err != nil || n != len(bytes) {
			t.Fatalf("decode %x: %v", bytes, err)
		}
		if err := enc.Encode(inst); err != nil {
			t.Fatalf("encode %x: %v", bytes, err)
		}
	}
	code := enc.Finish()

	s := NewState(ConditionalTrees, solver.NewSolver())
	events := stepAll(t, s, 0x1000, code)

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventExit {
		t.Errorf("got event kind %d, want EventExit", events[0].Kind)
	}
}

func TestStepConstAndMovRoundTrip(t *testing.T) {
	s := NewState(PerfectMatches, solver.NewSolver())
	t0 := microcode.Temporary{Width: num.N32, Index: 0}

	s.Step(0, microcode.MicroOperation{Kind: microcode.OpConst, ConstDest: t0, Constant: num.NewInteger(num.N32, 7)})
	got := s.GetTemp(t0)
	if got.Kind != solver.ExprConst || got.Value != 7 {
		t.Errorf("const T0 = %s, want 0x7:n32", got)
	}

	dest := microcode.Direct(num.N32, spaceRegs, amd64.RAX.Address())
	s.WriteLocation(dest, got)
	readBack := s.ReadLocation(dest)
	if readBack.Value != 7 {
		t.Errorf("read back eax = %s, want 7", readBack)
	}
}

func TestStepSetEqual(t *testing.T) {
	s := NewState(PerfectMatches, solver.NewSolver())
	a := microcode.Temporary{Width: num.N32, Index: 0}
	b := microcode.Temporary{Width: num.N32, Index: 1}
	target := microcode.Temporary{Width: num.N8, Index: 2}

	s.SetTemp(a, solver.Const(num.N32, 5))
	s.SetTemp(b, solver.Const(num.N32, 5))

	cond := microcode.Equal(microcode.Comparison{Kind: microcode.CmpSub, A: a, B: b})
	s.Step(0, microcode.MicroOperation{Kind: microcode.OpSet, SetTarget: target, SetCondition: cond})

	got := s.GetTemp(target)
	if got.Value != 1 {
		t.Errorf("set eq(5,5) = %d, want 1", got.Value)
	}
}

func TestStepSetLessAndGreater(t *testing.T) {
	s := NewState(PerfectMatches, solver.NewSolver())
	a := microcode.Temporary{Width: num.N32, Index: 0}
	b := microcode.Temporary{Width: num.N32, Index: 1}
	lt := microcode.Temporary{Width: num.N8, Index: 2}
	gt := microcode.Temporary{Width: num.N8, Index: 3}

	s.SetTemp(a, solver.Const(num.N32, 3))
	s.SetTemp(b, solver.Const(num.N32, 5))

	cmp := microcode.Comparison{Kind: microcode.CmpSub, A: a, B: b}
	s.Step(0, microcode.MicroOperation{Kind: microcode.OpSet, SetTarget: lt, SetCondition: microcode.Less(cmp)})
	s.Step(0, microcode.MicroOperation{Kind: microcode.OpSet, SetTarget: gt, SetCondition: microcode.Greater(cmp)})

	if v := s.GetTemp(lt).Value; v != 1 {
		t.Errorf("3 < 5: setl = %d, want 1", v)
	}
	if v := s.GetTemp(gt).Value; v != 0 {
		t.Errorf("3 < 5: setg = %d, want 0", v)
	}
}

func TestStepJumpReturnsEvent(t *testing.T) {
	s := NewState(PerfectMatches, solver.NewSolver())
	target := microcode.Temporary{Width: num.N64, Index: 0}
	s.SetTemp(target, solver.Const(num.N64, 0x20))

	ev := s.Step(0x10, microcode.MicroOperation{
		Kind:         microcode.OpJump,
		JumpTarget:   target,
		JumpCondition: microcode.True(),
		JumpRelative: true,
	})
	if ev == nil || ev.Kind != EventJump {
		t.Fatalf("got %v, want a Jump event", ev)
	}
	if ev.JumpTarget.Value != 0x20 {
		t.Errorf("jump target = %s, want 0x20", ev.JumpTarget)
	}
	if !ev.JumpRelative {
		t.Error("jump should be relative")
	}
}

func TestStepSyscallReadGeneratesStdinSymbols(t *testing.T) {
	s := NewState(PerfectMatches, solver.NewSolver())
	s.SetReg(amd64.RAX, solver.Const(num.N64, 0))  // sys_read
	s.SetReg(amd64.RSI, solver.Const(num.N64, 0x500))
	s.SetReg(amd64.RDX, solver.Const(num.N64, 3))

	ev := s.Step(0x10, microcode.MicroOperation{Kind: microcode.OpSyscall})
	if ev == nil || ev.Kind != EventStdio || ev.StdioKind != StdioStdin {
		t.Fatalf("got %v, want a Stdin Stdio event", ev)
	}
	if len(ev.StdioAccess) != 3 {
		t.Fatalf("got %d byte accesses, want 3", len(ev.StdioAccess))
	}
	for i, acc := range ev.StdioAccess {
		if acc.Symbol.Namespace != NamespaceStdin || acc.Symbol.Index != uint64(i) {
			t.Errorf("byte %d symbol = %s, want stdin%d", i, acc.Symbol, i)
		}
		loc, ok := s.Symbols[acc.Symbol]
		if !ok {
			t.Fatalf("byte %d symbol has no recorded abstract location", i)
		}
		if loc.Storage.Base != amd64.RSI || loc.Storage.HasDisp != (i > 0) {
			t.Errorf("byte %d location = %+v", i, loc.Storage)
		}
	}

	// The written bytes must be observable by reading main memory back.
	got := s.Main.ReadDirect(0x500, num.N8)
	if got.Kind != solver.ExprSymbol {
		t.Errorf("memory at buffer start = %s, want the stdin0 symbol", got)
	}
}

func TestStepSyscallExit(t *testing.T) {
	s := NewState(PerfectMatches, solver.NewSolver())
	s.SetReg(amd64.RAX, solver.Const(num.N64, 60))
	ev := s.Step(0, microcode.MicroOperation{Kind: microcode.OpSyscall})
	if ev == nil || ev.Kind != EventExit {
		t.Fatalf("got %v, want Exit", ev)
	}
}
