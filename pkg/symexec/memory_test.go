package symexec

import (
	"testing"

	"github.com/symlift/symlift/pkg/num"
	"github.com/symlift/symlift/pkg/solver"
)

func TestMemoryWriteReadIdentity(t *testing.T) {
	m := NewMemory(NamespaceMem, PerfectMatches, solver.NewSolver())
	addr := solver.Const(num.N64, 0x1000)
	value := solver.Const(num.N32, 0xdead)
	m.WriteExpr(addr, value)

	got := m.ReadExpr(addr, num.N32)
	if got.Kind != value.Kind || got.Value != value.Value {
		t.Errorf("read after write = %s, want %s", got, value)
	}
}

func TestMemoryWriteWriteReadReturnsLast(t *testing.T) {
	m := NewMemory(NamespaceMem, PerfectMatches, solver.NewSolver())
	addr := solver.Const(num.N64, 0x2000)
	m.WriteExpr(addr, solver.Const(num.N32, 1))
	m.WriteExpr(addr, solver.Const(num.N32, 2))

	got := m.ReadExpr(addr, num.N32)
	if got.Value != 2 {
		t.Errorf("read after write;write = %d, want 2", got.Value)
	}
}

func TestMemoryReadMemoizesDefaultSymbol(t *testing.T) {
	m := NewMemory(NamespaceMem, PerfectMatches, solver.NewSolver())
	addr := solver.Const(num.N64, 0x3000)

	first := m.ReadExpr(addr, num.N16)
	second := m.ReadExpr(addr, num.N16)
	if first.Kind != solver.ExprSymbol || second.Kind != solver.ExprSymbol {
		t.Fatalf("expected symbolic defaults, got %s and %s", first, second)
	}
	if first.Symbol != second.Symbol {
		t.Errorf("two reads of an untouched address returned different symbols: %s vs %s", first, second)
	}
}

func TestMemoryDefaultSymbolsDistinctPerAddress(t *testing.T) {
	m := NewMemory(NamespaceMem, PerfectMatches, solver.NewSolver())
	a := m.ReadExpr(solver.Const(num.N64, 0x10), num.N8)
	b := m.ReadExpr(solver.Const(num.N64, 0x20), num.N8)
	if a.Symbol == b.Symbol {
		t.Errorf("distinct addresses got the same default symbol %s", a)
	}
}

func TestMemoryConditionalTreesPerfectMatchShortCircuits(t *testing.T) {
	sv := solver.NewSolver()
	m := NewMemory(NamespaceMem, ConditionalTrees, sv)

	x := Symbol{Width: num.N64, Namespace: NamespaceReg, Index: 0}.Expr()
	addr1 := solver.Add(x, solver.Const(num.N64, 0))
	addr2 := solver.Add(x, solver.Const(num.N64, 8))

	m.WriteExpr(addr1, solver.Const(num.N32, 0xaa))
	m.WriteExpr(addr2, solver.Const(num.N32, 0xbb))
	// A syntactically identical read of addr2 must come back as an exact
	// match, not a disjunction tree, since the scan stops the moment it
	// hits the perfect match.
	got := m.ReadExpr(addr2, num.N32)
	if got.Kind != solver.ExprConst || got.Value != 0xbb {
		t.Errorf("perfect match read = %s, want 0xbb", got)
	}
}

func TestMemoryConditionalTreesBuildsITEForAmbiguousAddress(t *testing.T) {
	sv := solver.NewSolver()
	m := NewMemory(NamespaceMem, ConditionalTrees, sv)

	x := Symbol{Width: num.N64, Namespace: NamespaceReg, Index: 1}.Expr()
	m.WriteExpr(x, solver.Const(num.N32, 1))

	// x+0 is syntactically distinct from x, so the read goes through the
	// equal-sat branch (always true here) rather than the perfect-match
	// branch, producing an ITE node. It must still evaluate to the
	// written value under any assignment.
	otherAddr := solver.Add(x, solver.Const(num.N64, 0))
	got := m.ReadExpr(otherAddr, num.N32)
	if got.Width != num.N32 {
		t.Fatalf("got width %s, want n32", got.Width)
	}
	env := map[solver.SymbolID]uint64{}
	for _, id := range solver.Symbols(got) {
		env[id] = 7
	}
	if v := solver.Eval(got, env).Bits; v != 1 {
		t.Errorf("read through equal-sat address = %d, want 1", v)
	}
}

func TestMemoryRequestedWidthCastsFallback(t *testing.T) {
	m := NewMemory(NamespaceMem, PerfectMatches, solver.NewSolver())
	got := m.ReadExpr(solver.Const(num.N64, 0x40), num.N16)
	if got.Width != num.N16 {
		t.Errorf("default symbol width = %s, want n16", got.Width)
	}
}
