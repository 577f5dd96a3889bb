package microcode

import (
	"fmt"

	"github.com/symlift/symlift/pkg/num"
)

// OpKind tags one of the twelve micro-operations the encoder emits.
type OpKind uint8

const (
	OpMov OpKind = iota
	OpConst
	OpCast
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpNot
	OpSet
	OpJump
	OpSyscall
)

// MicroOperation is the tagged union the encoder emits and the
// executor steps through. Only the fields meaningful for Kind are
// populated; the rest are left zero.
type MicroOperation struct {
	Kind OpKind

	Dest Location // Mov
	Src  Location // Mov

	ConstDest Temporary  // Const
	Constant  num.Integer // Const

	CastTarget Temporary    // Cast: the temporary before the cast (old width)
	CastNew    num.DataType // Cast: the width after the cast
	CastSigned bool         // Cast

	BinDest Temporary // Add/Sub/Mul/And/Or
	BinA    Temporary // Add/Sub/Mul/And/Or
	BinB    Temporary // Add/Sub/Mul/And/Or

	NotDest Temporary // Not
	NotA    Temporary // Not

	SetTarget    Temporary // Set
	SetCondition Condition // Set

	JumpTarget    Temporary // Jump
	JumpCondition Condition // Jump
	JumpRelative  bool      // Jump
}

// Diverges is true only for Jump.
func (op MicroOperation) Diverges() bool {
	return op.Kind == OpJump
}

func (op MicroOperation) String() string {
	switch op.Kind {
	case OpMov:
		return fmt.Sprintf("mov %s = %s", op.Dest, op.Src)
	case OpConst:
		return fmt.Sprintf("const %s = %s", op.ConstDest, op.Constant)
	case OpCast:
		mode := "unsigned"
		if op.CastSigned {
			mode = "signed"
		}
		return fmt.Sprintf("cast %s to %s %s", op.CastTarget, op.CastNew, mode)
	case OpAdd:
		return fmt.Sprintf("add %s = %s + %s", op.BinDest, op.BinA, op.BinB)
	case OpSub:
		return fmt.Sprintf("sub %s = %s - %s", op.BinDest, op.BinA, op.BinB)
	case OpMul:
		return fmt.Sprintf("mul %s = %s * %s", op.BinDest, op.BinA, op.BinB)
	case OpAnd:
		return fmt.Sprintf("and %s = %s & %s", op.BinDest, op.BinA, op.BinB)
	case OpOr:
		return fmt.Sprintf("or %s = %s | %s", op.BinDest, op.BinA, op.BinB)
	case OpNot:
		return fmt.Sprintf("not %s = !%s", op.NotDest, op.NotA)
	case OpSet:
		return fmt.Sprintf("set %s%s", op.SetTarget, op.SetCondition.suffix())
	case OpJump:
		dir := "to"
		if op.JumpRelative {
			dir = "by"
		}
		return fmt.Sprintf("jump %s %s%s", dir, op.JumpTarget, op.JumpCondition.suffix())
	case OpSyscall:
		return "syscall"
	default:
		return "?"
	}
}

func movOp(dest, src Location) MicroOperation {
	return MicroOperation{Kind: OpMov, Dest: dest, Src: src}
}

func constOp(dest Temporary, value num.Integer) MicroOperation {
	return MicroOperation{Kind: OpConst, ConstDest: dest, Constant: value}
}

func castOp(target Temporary, new num.DataType, signed bool) MicroOperation {
	return MicroOperation{Kind: OpCast, CastTarget: target, CastNew: new, CastSigned: signed}
}

func binOp(kind OpKind, dest, a, b Temporary) MicroOperation {
	return MicroOperation{Kind: kind, BinDest: dest, BinA: a, BinB: b}
}

func setOp(target Temporary, cond Condition) MicroOperation {
	return MicroOperation{Kind: OpSet, SetTarget: target, SetCondition: cond}
}

func jumpOp(target Temporary, cond Condition, relative bool) MicroOperation {
	return MicroOperation{Kind: OpJump, JumpTarget: target, JumpCondition: cond, JumpRelative: relative}
}
