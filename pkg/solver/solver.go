package solver

import (
	"sync"

	"github.com/symlift/symlift/pkg/num"
)

// repValues is the representative-byte set swept at every width under
// test, widened and masked as needed. Using the same fixed constants at
// every width (rather than deriving a fresh set per width) keeps results
// reproducible across calls and cheap to memoize.
var repValues = []uint64{
	0x00, 0x01, 0x02, 0x0F, 0x10, 0x1F, 0x20, 0x3F,
	0x40, 0x55, 0x7E, 0x7F, 0x80, 0x81, 0xAA, 0xBF,
	0xC0, 0xD5, 0xE0, 0xEF, 0xF0, 0xF7, 0xFE, 0xFF,
}

// maxJointCombos bounds how many representative assignments a multi-symbol
// sweep will try in total: beyond a handful of free symbols an exhaustive
// cross product is infeasible, so the sweep is capped and a negative
// result beyond the cap is reported as unsat rather than hung forever.
const maxJointCombos = 1 << 16

// representativesFor returns the sweep values for a symbol of width w:
// the shared repValues plus w's own boundary values (0, 1, max, max-1,
// sign bit), deduplicated and masked into range.
func representativesFor(w num.DataType) []uint64 {
	max := num.NewInteger(w, ^uint64(0)).Bits
	seed := append([]uint64{}, repValues...)
	seed = append(seed, 0, 1, max, max-1, uint64(1)<<uint(w.Bits()-1))
	seen := map[uint64]bool{}
	out := make([]uint64, 0, len(seed))
	for _, v := range seed {
		v = num.NewInteger(w, v).Bits
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Solver answers two queries, CheckEqualSat and SimplifyCondition, both
// implemented by sweeping representative values through each query's free
// symbols rather than by decision procedure — an approximation that holds
// up well in practice and sidesteps pulling in an external SMT dependency.
// A Solver's zero value is ready to use; it is safe for concurrent use by
// multiple symbolic-state clones.
type Solver struct {
	mu    sync.Mutex
	cache map[string]bool
}

// NewSolver returns a ready-to-use Solver with an empty memoization cache.
func NewSolver() *Solver {
	return &Solver{cache: make(map[string]bool)}
}

// CheckEqualSat reports whether some assignment of a's and b's free symbols
// makes a and b evaluate equal. a and b need not share a width; narrower
// values are zero-extended for the comparison, matching how the executor
// always reconciles widths before building an equality. Only sampled
// assignments are tried: the representative values, plus each constant
// appearing in a or b as the value of every free symbol at once.
func (s *Solver) CheckEqualSat(a, b Expr) bool {
	key := "eq:" + a.String() + "|" + b.String()
	s.mu.Lock()
	if v, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return v
	}
	s.mu.Unlock()

	ids := append(append([]SymbolID{}, Symbols(a)...), Symbols(b)...)
	widths := map[SymbolID]num.DataType{}
	var consts []uint64
	Walk(a, func(e Expr) {
		if e.Kind == ExprSymbol {
			widths[e.Symbol] = e.Width
		} else if e.Kind == ExprConst {
			consts = append(consts, e.Value)
		}
	})
	Walk(b, func(e Expr) {
		if e.Kind == ExprSymbol {
			widths[e.Symbol] = e.Width
		} else if e.Kind == ExprConst {
			consts = append(consts, e.Value)
		}
	})
	ids = dedupSymbols(ids)

	result := sweepSat(ids, widths, func(env map[SymbolID]uint64) bool {
		return Eval(a, env).Bits == Eval(b, env).Bits
	})
	// The query's own constants are likely witnesses (x == 5).
	for _, v := range consts {
		env := make(map[SymbolID]uint64, len(ids))
		for _, id := range ids {
			env[id] = v
		}
		result = result || Eval(a, env).Bits == Eval(b, env).Bits
	}

	s.mu.Lock()
	if s.cache == nil {
		s.cache = make(map[string]bool)
	}
	s.cache[key] = result
	s.mu.Unlock()
	return result
}

// SimplifyCondition returns an equivalent, hopefully smaller condition. The
// only simplifications attempted are: fold to True/False when c has no free
// symbols, and fold to True/False when c holds (or fails) for every sampled
// assignment: the representative sweep, plus each constant appearing in c
// as the value of every free symbol at once. Anything else is returned
// unchanged — this is a best-effort simplifier, not a canonicalizer.
func (s *Solver) SimplifyCondition(c Condition) Condition {
	ids := conditionSymbols(c)
	if len(ids) == 0 {
		if evalCondition(c, nil) {
			return True()
		}
		return False()
	}

	widths := map[SymbolID]num.DataType{}
	var consts []uint64
	var collect func(Condition)
	collect = func(c Condition) {
		switch c.Kind {
		case CondEq, CondNe:
			Walk(c.A, func(e Expr) {
				if e.Kind == ExprSymbol {
					widths[e.Symbol] = e.Width
				} else if e.Kind == ExprConst {
					consts = append(consts, e.Value)
				}
			})
			Walk(c.B, func(e Expr) {
				if e.Kind == ExprSymbol {
					widths[e.Symbol] = e.Width
				} else if e.Kind == ExprConst {
					consts = append(consts, e.Value)
				}
			})
		case CondAnd, CondOr:
			collect(*c.L)
			collect(*c.R)
		case CondNot:
			collect(*c.L)
		}
	}
	collect(c)

	allTrue, allFalse := true, true
	sweepAll(ids, widths, func(env map[SymbolID]uint64) {
		if evalCondition(c, env) {
			allFalse = false
		} else {
			allTrue = false
		}
	})
	// The condition's own constants are likely witnesses (x == 5).
	for _, v := range consts {
		env := make(map[SymbolID]uint64, len(ids))
		for _, id := range ids {
			env[id] = v
		}
		holds := evalCondition(c, env)
		allTrue, allFalse = allTrue && holds, allFalse && !holds
	}
	switch {
	case allTrue:
		return True()
	case allFalse:
		return False()
	default:
		return c
	}
}

func dedupSymbols(ids []SymbolID) []SymbolID {
	seen := map[SymbolID]bool{}
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// sweepSat returns true as soon as check holds for some representative
// assignment of ids; it gives up (returns false) after maxJointCombos
// attempts.
func sweepSat(ids []SymbolID, widths map[SymbolID]num.DataType, check func(map[SymbolID]uint64) bool) bool {
	if len(ids) == 0 {
		return check(nil)
	}
	found := false
	budget := maxJointCombos
	var rec func(i int, env map[SymbolID]uint64)
	rec = func(i int, env map[SymbolID]uint64) {
		if found || budget <= 0 {
			return
		}
		if i == len(ids) {
			budget--
			if check(env) {
				found = true
			}
			return
		}
		for _, v := range representativesFor(widths[ids[i]]) {
			env[ids[i]] = v
			rec(i+1, env)
			if found || budget <= 0 {
				return
			}
		}
	}
	rec(0, map[SymbolID]uint64{})
	return found
}

// sweepAll calls visit once per representative assignment of ids, up to
// maxJointCombos total calls.
func sweepAll(ids []SymbolID, widths map[SymbolID]num.DataType, visit func(map[SymbolID]uint64)) {
	budget := maxJointCombos
	var rec func(i int, env map[SymbolID]uint64)
	rec = func(i int, env map[SymbolID]uint64) {
		if budget <= 0 {
			return
		}
		if i == len(ids) {
			budget--
			visit(env)
			return
		}
		for _, v := range representativesFor(widths[ids[i]]) {
			if budget <= 0 {
				return
			}
			env[ids[i]] = v
			rec(i+1, env)
		}
	}
	rec(0, map[SymbolID]uint64{})
}
