// Package solver implements the narrow capability the symbolic executor
// consumes: a small expression/condition algebra plus equality-satisfiability
// and condition-simplification queries. There is no backing theorem prover
// here; satisfiability and simplification are both answered by sweeping a
// fixed set of representative values through each expression's free symbols,
// the same representative-value discipline a brute-force equivalence check
// uses when it cannot afford to try every possible input.
package solver

import (
	"fmt"

	"github.com/symlift/symlift/pkg/num"
)

// SymbolID names one free variable in an expression tree. The solver treats
// it as opaque; symexec is the one that remembers what memory location or
// register a given id stands for.
type SymbolID uint64

// ExprKind tags the shape of an expression node.
type ExprKind uint8

const (
	ExprConst ExprKind = iota
	ExprSymbol
	ExprAdd
	ExprSub
	ExprMul
	ExprAnd
	ExprOr
	ExprNot
	ExprCast
	ExprITE
)

// Expr is an immutable symbolic expression tree over 64-bit-wide integer
// values. Nodes are small enough to pass by value; children are held by
// pointer so a tree can be shared between conditions without copying.
type Expr struct {
	Kind  ExprKind
	Width num.DataType

	// ExprConst
	Value uint64

	// ExprSymbol
	Symbol SymbolID

	// ExprAdd/Sub/Mul/And/Or
	A, B *Expr

	// ExprNot/ExprCast
	X      *Expr
	Signed bool // ExprCast only

	// ExprITE
	Cond       *Condition
	Then, Else *Expr
}

// Const builds a constant leaf.
func Const(width num.DataType, value uint64) Expr {
	return Expr{Kind: ExprConst, Width: width, Value: num.NewInteger(width, value).Bits}
}

// Sym builds a free-symbol leaf of the given width.
func Sym(id SymbolID, width num.DataType) Expr {
	return Expr{Kind: ExprSymbol, Width: width, Symbol: id}
}

func bin(kind ExprKind, a, b Expr) Expr {
	if a.Width != b.Width {
		panic(fmt.Sprintf("solver: width mismatch building %v: %s vs %s", kind, a.Width, b.Width))
	}
	// Fold constant-on-constant immediately. This keeps concrete address
	// arithmetic (register + displacement, buffer + byte index, ...)
	// syntactically equal to a plain Const built from the same number,
	// which is what memory's syntactic-match lookups rely on.
	if a.Kind == ExprConst && b.Kind == ExprConst {
		return Const(a.Width, foldConst(kind, a.Value, b.Value))
	}
	return Expr{Kind: kind, Width: a.Width, A: &a, B: &b}
}

func foldConst(kind ExprKind, a, b uint64) uint64 {
	switch kind {
	case ExprAdd:
		return a + b
	case ExprSub:
		return a - b
	case ExprMul:
		return a * b
	case ExprAnd:
		return a & b
	case ExprOr:
		return a | b
	default:
		panic(fmt.Sprintf("solver: foldConst: not a binary kind %d", kind))
	}
}

// Add, Sub, Mul, And, Or build binary nodes. Both operands must already
// share a width; the caller (symexec) is responsible for casting first,
// exactly as the microcode encoder does for machine operands.
func Add(a, b Expr) Expr { return bin(ExprAdd, a, b) }
func Sub(a, b Expr) Expr { return bin(ExprSub, a, b) }
func Mul(a, b Expr) Expr { return bin(ExprMul, a, b) }
func And(a, b Expr) Expr { return bin(ExprAnd, a, b) }
func Or(a, b Expr) Expr  { return bin(ExprOr, a, b) }

// Not builds a bitwise complement node, folding immediately if a is
// already a constant.
func Not(a Expr) Expr {
	if a.Kind == ExprConst {
		return Const(a.Width, ^a.Value)
	}
	return Expr{Kind: ExprNot, Width: a.Width, X: &a}
}

// Cast builds a width-change node, signed or unsigned, folding
// immediately if a is already a constant.
func Cast(a Expr, to num.DataType, signed bool) Expr {
	if a.Kind == ExprConst {
		return Const(to, num.Integer{Width: a.Width, Bits: a.Value}.Cast(to, signed).Bits)
	}
	return Expr{Kind: ExprCast, Width: to, X: &a, Signed: signed}
}

// ITE builds an if-then-else node: then's width is taken as the node's
// width, matching how memory read trees are built from possibly
// differently-sized entries and only cast to the requested width once,
// at the very end.
func ITE(cond Condition, then, els Expr) Expr {
	return Expr{Kind: ExprITE, Width: then.Width, Cond: &cond, Then: &then, Else: &els}
}

func (e Expr) String() string {
	switch e.Kind {
	case ExprConst:
		return num.Integer{Width: e.Width, Bits: e.Value}.String()
	case ExprSymbol:
		return fmt.Sprintf("s%d:%s", e.Symbol, e.Width)
	case ExprAdd:
		return fmt.Sprintf("(%s + %s)", e.A, e.B)
	case ExprSub:
		return fmt.Sprintf("(%s - %s)", e.A, e.B)
	case ExprMul:
		return fmt.Sprintf("(%s * %s)", e.A, e.B)
	case ExprAnd:
		return fmt.Sprintf("(%s & %s)", e.A, e.B)
	case ExprOr:
		return fmt.Sprintf("(%s | %s)", e.A, e.B)
	case ExprNot:
		return fmt.Sprintf("!%s", e.X)
	case ExprCast:
		mode := "unsigned"
		if e.Signed {
			mode = "signed"
		}
		return fmt.Sprintf("cast(%s to %s %s)", e.X, e.Width, mode)
	case ExprITE:
		return fmt.Sprintf("ite(%s, %s, %s)", e.Cond, e.Then, e.Else)
	default:
		return "?"
	}
}

// Walk visits e and every descendant, pre-order, the traversal hook the
// rest of the expression algebra builds on.
func Walk(e Expr, visit func(Expr)) {
	visit(e)
	switch e.Kind {
	case ExprAdd, ExprSub, ExprMul, ExprAnd, ExprOr:
		Walk(*e.A, visit)
		Walk(*e.B, visit)
	case ExprNot, ExprCast:
		Walk(*e.X, visit)
	case ExprITE:
		walkCondition(*e.Cond, visit)
		Walk(*e.Then, visit)
		Walk(*e.Else, visit)
	}
}

// Symbols returns the set of distinct SymbolIDs appearing in e.
func Symbols(e Expr) []SymbolID {
	seen := map[SymbolID]bool{}
	var order []SymbolID
	Walk(e, func(node Expr) {
		if node.Kind == ExprSymbol && !seen[node.Symbol] {
			seen[node.Symbol] = true
			order = append(order, node.Symbol)
		}
	})
	return order
}

// Substitute returns a copy of e with every ExprSymbol leaf present in subs
// replaced by its mapped expression: the algebra's symbol-substitution
// hook. The solver's own sweeps do not use it; they evaluate through Eval
// with an assignment map instead.
func Substitute(e Expr, subs map[SymbolID]Expr) Expr {
	switch e.Kind {
	case ExprConst:
		return e
	case ExprSymbol:
		if v, ok := subs[e.Symbol]; ok {
			return v
		}
		return e
	case ExprAdd, ExprSub, ExprMul, ExprAnd, ExprOr:
		a := Substitute(*e.A, subs)
		b := Substitute(*e.B, subs)
		return Expr{Kind: e.Kind, Width: e.Width, A: &a, B: &b}
	case ExprNot:
		x := Substitute(*e.X, subs)
		return Expr{Kind: ExprNot, Width: e.Width, X: &x}
	case ExprCast:
		x := Substitute(*e.X, subs)
		return Expr{Kind: ExprCast, Width: e.Width, X: &x, Signed: e.Signed}
	case ExprITE:
		cond := substituteCondition(*e.Cond, subs)
		then := Substitute(*e.Then, subs)
		els := Substitute(*e.Else, subs)
		return Expr{Kind: ExprITE, Width: e.Width, Cond: &cond, Then: &then, Else: &els}
	default:
		return e
	}
}

// Eval folds e to a concrete Integer given a total assignment for its free
// symbols. Every symbol appearing in e must have an entry in env; Eval
// panics otherwise, since an incomplete environment is a solver-internal
// programming error, not a condition a caller can recover from.
func Eval(e Expr, env map[SymbolID]uint64) num.Integer {
	switch e.Kind {
	case ExprConst:
		return num.Integer{Width: e.Width, Bits: e.Value}
	case ExprSymbol:
		v, ok := env[e.Symbol]
		if !ok {
			panic(fmt.Sprintf("solver: no assignment for symbol s%d", e.Symbol))
		}
		return num.NewInteger(e.Width, v)
	case ExprAdd:
		return num.NewInteger(e.Width, Eval(*e.A, env).Bits+Eval(*e.B, env).Bits)
	case ExprSub:
		return num.NewInteger(e.Width, Eval(*e.A, env).Bits-Eval(*e.B, env).Bits)
	case ExprMul:
		return num.NewInteger(e.Width, Eval(*e.A, env).Bits*Eval(*e.B, env).Bits)
	case ExprAnd:
		return num.NewInteger(e.Width, Eval(*e.A, env).Bits&Eval(*e.B, env).Bits)
	case ExprOr:
		return num.NewInteger(e.Width, Eval(*e.A, env).Bits|Eval(*e.B, env).Bits)
	case ExprNot:
		return num.NewInteger(e.Width, ^Eval(*e.X, env).Bits)
	case ExprCast:
		inner := Eval(*e.X, env)
		return inner.Cast(e.Width, e.Signed)
	case ExprITE:
		if evalCondition(*e.Cond, env) {
			return Eval(*e.Then, env)
		}
		return Eval(*e.Else, env)
	default:
		panic(fmt.Sprintf("solver: unevaluable expression kind %d", e.Kind))
	}
}
