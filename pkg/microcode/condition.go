package microcode

import "fmt"

// ComparisonKind names which binary operation produced a Comparison.
type ComparisonKind uint8

const (
	CmpAdd ComparisonKind = iota
	CmpSub
	CmpMul
	CmpAnd
)

var comparisonSymbols = [...]string{CmpAdd: "+", CmpSub: "-", CmpMul: "*", CmpAnd: "&"}

// Comparison captures the two temporaries that were the inputs of the
// last flag-producing operation, by value, so it can be embedded into
// later jumps/sets once the original temps may have been reassigned.
type Comparison struct {
	Kind ComparisonKind
	A, B Temporary
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.A, comparisonSymbols[c.Kind], c.B)
}

// ConditionKind names one of the four predicates a Set/Jump can test.
type ConditionKind uint8

const (
	CondTrue ConditionKind = iota
	CondEqual
	CondGreater
	CondLess
)

var conditionWords = [...]string{CondTrue: "", CondEqual: "equal", CondGreater: "greater", CondLess: "less"}

// Condition is True, or one of Equal/Greater/Less carrying the
// comparison it evaluates against.
type Condition struct {
	Kind       ConditionKind
	Comparison Comparison // meaningful when Kind != CondTrue
}

// True is the unconditional predicate.
func True() Condition { return Condition{Kind: CondTrue} }

// Equal, Greater and Less wrap the carried comparison into a predicate.
func Equal(cmp Comparison) Condition   { return Condition{Kind: CondEqual, Comparison: cmp} }
func Greater(cmp Comparison) Condition { return Condition{Kind: CondGreater, Comparison: cmp} }
func Less(cmp Comparison) Condition    { return Condition{Kind: CondLess, Comparison: cmp} }

// suffix renders " if <comparison> <word>", or the empty string for True.
func (c Condition) suffix() string {
	if c.Kind == CondTrue {
		return ""
	}
	return fmt.Sprintf(" if %s %s", c.Comparison, conditionWords[c.Kind])
}
