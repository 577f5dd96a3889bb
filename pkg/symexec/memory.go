package symexec

import (
	"sort"

	"github.com/symlift/symlift/pkg/num"
	"github.com/symlift/symlift/pkg/solver"
)

// Strategy picks how Memory answers a read whose address doesn't
// syntactically match any entry.
type Strategy uint8

const (
	// ConditionalTrees builds an if-then-else tree of every entry whose
	// address could possibly coincide with the one being read.
	ConditionalTrees Strategy = iota
	// PerfectMatches only ever returns syntactically identical matches.
	// Cheaper, and the right choice for the register file, where
	// addresses are always concrete.
	PerfectMatches
)

type memoryEntry struct {
	addr  solver.Expr
	value solver.Expr
	epoch uint32
}

// Memory is one of the two symbolic memory spaces (main memory and the
// register file): an ordered list of entries plus a default-symbol
// counter and an insertion-order epoch. Entries are kept in a plain
// slice and scanned linearly. Reads that mint a fresh default symbol
// mutate the entry list, so a Memory is not safe for concurrent use by
// itself — callers fork a whole State (and hence a whole Memory) before
// diverging.
type Memory struct {
	namespace Namespace
	strategy  Strategy
	solver    *solver.Solver

	entries  []memoryEntry
	epoch    uint32
	defaults uint64
}

// NewMemory returns a blank memory tagged with namespace (used to name
// its default symbols) using strategy and sv for any symbolic queries
// ConditionalTrees needs.
func NewMemory(namespace Namespace, strategy Strategy, sv *solver.Solver) *Memory {
	return &Memory{namespace: namespace, strategy: strategy, solver: sv, epoch: 1}
}

// ReadDirect reads from a concrete address.
func (m *Memory) ReadDirect(addr uint64, width num.DataType) solver.Expr {
	return m.ReadExpr(solver.Const(num.N64, addr), width)
}

// WriteDirect writes to a concrete address.
func (m *Memory) WriteDirect(addr uint64, value solver.Expr) {
	m.WriteExpr(solver.Const(num.N64, addr), value)
}

// ReadExpr reads from a symbolic address, returning an expression of
// the requested width.
func (m *Memory) ReadExpr(addr solver.Expr, width num.DataType) solver.Expr {
	var expr solver.Expr
	if m.strategy == ConditionalTrees {
		expr = m.readConditional(addr, width)
	} else {
		expr = m.readPerfect(addr, width)
	}
	if expr.Width == width {
		return expr
	}
	return solver.Cast(expr, width, false)
}

// WriteExpr writes value at addr, overwriting in place when an entry
// with a syntactically identical address already exists, otherwise
// appending a new entry and bumping the epoch.
func (m *Memory) WriteExpr(addr, value solver.Expr) {
	entry := memoryEntry{addr: addr, value: value, epoch: m.epoch}
	for i, e := range m.entries {
		if exprEqual(e.addr, addr) {
			m.entries[i] = entry
			return
		}
	}
	m.entries = append(m.entries, entry)
	m.epoch++
}

func (m *Memory) readPerfect(addr solver.Expr, width num.DataType) solver.Expr {
	var (
		found   bool
		value   solver.Expr
		highest uint32
	)
	for _, e := range m.entries {
		if exprEqual(e.addr, addr) && (!found || e.epoch > highest) {
			found, value, highest = true, e.value, e.epoch
		}
	}
	if found {
		return value
	}
	return m.defaultSymbol(addr, width)
}

// readConditional implements the ConditionalTrees strategy: entries are
// sorted newest-epoch-first, and scanned for either a perfect
// (syntactic) match — which stops the scan, discarding everything
// older — or a satisfiable-but-not-certain match, which joins the
// if-then-else chain as a guarded candidate. If no perfect match is
// found, a fresh default symbol becomes the innermost fallback.
func (m *Memory) readConditional(addr solver.Expr, width num.DataType) solver.Expr {
	sorted := make([]memoryEntry, len(m.entries))
	copy(sorted, m.entries)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].epoch > sorted[j].epoch })

	type candidate struct {
		cond  solver.Condition
		value solver.Expr
	}
	var chain []candidate
	var perfect solver.Expr
	havePerfect := false

	for _, e := range sorted {
		if exprEqual(e.addr, addr) {
			perfect, havePerfect = e.value, true
			break
		}
		if m.solver.CheckEqualSat(e.addr, addr) {
			simplified := m.solver.SimplifyCondition(solver.Eq(e.addr, addr))
			chain = append(chain, candidate{cond: simplified, value: e.value})
		}
	}

	var tree solver.Expr
	if havePerfect {
		tree = perfect
	} else {
		tree = m.defaultSymbol(addr, width)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		tree = solver.ITE(chain[i].cond, chain[i].value, tree)
	}
	return tree
}

// defaultSymbol synthesizes a fresh symbol for a previously unseen
// address and memoizes it as a zero-epoch entry, so a subsequent read
// of the identical address expression finds it via the syntactic-match
// branch above and returns the same symbol.
func (m *Memory) defaultSymbol(addr solver.Expr, width num.DataType) solver.Expr {
	sym := Symbol{Width: width, Namespace: m.namespace, Index: m.defaults}
	m.defaults++
	value := sym.Expr()
	m.entries = append(m.entries, memoryEntry{addr: addr, value: value, epoch: 0})
	return value
}

// exprEqual reports whether a and b are syntactically identical
// expression trees. Memory entries are keyed on this, not on solver
// satisfiability: at most one entry is kept per syntactically
// identical address.
func exprEqual(a, b solver.Expr) bool {
	if a.Kind != b.Kind || a.Width != b.Width {
		return false
	}
	switch a.Kind {
	case solver.ExprConst:
		return a.Value == b.Value
	case solver.ExprSymbol:
		return a.Symbol == b.Symbol
	case solver.ExprAdd, solver.ExprSub, solver.ExprMul, solver.ExprAnd, solver.ExprOr:
		return exprEqual(*a.A, *b.A) && exprEqual(*a.B, *b.B)
	case solver.ExprNot:
		return exprEqual(*a.X, *b.X)
	case solver.ExprCast:
		return a.Signed == b.Signed && exprEqual(*a.X, *b.X)
	case solver.ExprITE:
		return conditionEqual(*a.Cond, *b.Cond) && exprEqual(*a.Then, *b.Then) && exprEqual(*a.Else, *b.Else)
	default:
		return false
	}
}

func conditionEqual(a, b solver.Condition) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case solver.CondTrue, solver.CondFalse:
		return true
	case solver.CondEq, solver.CondNe:
		return exprEqual(a.A, b.A) && exprEqual(a.B, b.B)
	case solver.CondAnd, solver.CondOr:
		return conditionEqual(*a.L, *b.L) && conditionEqual(*a.R, *b.R)
	case solver.CondNot:
		return conditionEqual(*a.L, *b.L)
	default:
		return false
	}
}
