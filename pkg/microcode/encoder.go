package microcode

import (
	"fmt"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/num"
)

// EncodeError is the one recoverable error regime of the encoder: a
// move whose two sides disagree in width reached the primitive move
// emitter uncaught by a mnemonic's own coercion logic. Every other
// malformed-input case (wrong operand shape for a mnemonic, a
// conditional jump with no prior comparison, ...) is a programmer
// error and panics instead; see Encode's doc comment.
type EncodeError struct {
	Dest, Src Location
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("microcode: move width mismatch: dest %s, src %s", e.Dest, e.Src)
}

func registerLocation(reg amd64.Register) Location {
	return Direct(num.N64, 1, reg.Address())
}

// Encoder lowers decoded amd64 instructions into Microcode. It carries
// exactly two pieces of state across Encode calls: a monotonically
// increasing temporary counter and the last flag-producing comparison.
// Finish drains the accumulated buffer but preserves both.
type Encoder struct {
	ops            []MicroOperation
	temps          int
	lastComparison *Comparison
}

// NewEncoder returns an encoder with a fresh counter and no carried
// comparison.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Finish detaches the accumulated operations into a Microcode value.
// The temporary counter and last-comparison slot survive the call, so
// a subsequent Encode continues numbering where this batch left off.
func (e *Encoder) Finish() Microcode {
	ops := e.ops
	e.ops = nil
	return Microcode{Ops: ops}
}

func (e *Encoder) emit(op MicroOperation) {
	e.ops = append(e.ops, op)
}

func (e *Encoder) newTemp(width num.DataType) Temporary {
	t := Temporary{Width: width, Index: e.temps}
	e.temps++
	return t
}

// encodeMove is the sole primitive that can report EncodeError: it
// requires its two sides to already agree in width. Every call site in
// this file is expected to have already coerced widths to match; a
// mismatch here is the one recoverable error class the encoder reports
// rather than panicking on.
func (e *Encoder) encodeMove(dest, src Location) error {
	if dest.Width != src.Width {
		return &EncodeError{Dest: dest, Src: src}
	}
	e.emit(movOp(dest, src))
	return nil
}

// Encode appends the micro-operations implementing inst's semantics.
// It returns an EncodeError only for the width-mismatched-move case;
// any other malformed input (operand shape contradicting the mnemonic,
// a conditional jump/set with no prior comparison) is a programmer
// error and panics.
func (e *Encoder) Encode(inst amd64.Instruction) error {
	switch inst.Mnemonic {
	case amd64.Add:
		return e.encodeBinop(OpAdd, CmpAdd, inst)
	case amd64.Sub:
		return e.encodeBinop(OpSub, CmpSub, inst)
	case amd64.Imul:
		return e.encodeBinop(OpMul, CmpMul, inst)
	case amd64.Mov:
		return e.encodeMov(inst)
	case amd64.Movzx:
		_, err := e.encodeMoveCasted(inst.Operands[0], inst.Operands[1], false)
		return err
	case amd64.Lea:
		return e.encodeLea(inst)
	case amd64.Push:
		loc, err := e.resolveOperand(inst.Operands[0])
		if err != nil {
			return err
		}
		return e.encodePush(loc)
	case amd64.Pop:
		loc, err := e.resolveOperand(inst.Operands[0])
		if err != nil {
			return err
		}
		return e.encodePop(loc)
	case amd64.Call:
		return e.encodeCall(inst)
	case amd64.Ret:
		return e.encodeRet()
	case amd64.Leave:
		return e.encodeLeave()
	case amd64.Jmp:
		return e.encodeJump(inst, True())
	case amd64.Je:
		return e.encodeJump(inst, Equal(e.requireComparison()))
	case amd64.Jg:
		return e.encodeJump(inst, Greater(e.requireComparison()))
	case amd64.Cmp:
		return e.encodeCompare(CmpSub, inst)
	case amd64.Test:
		return e.encodeCompare(CmpAnd, inst)
	case amd64.Setl:
		return e.encodeSet(inst)
	case amd64.Syscall:
		e.emit(MicroOperation{Kind: OpSyscall})
		return nil
	case amd64.Nop:
		return nil
	default:
		panic(fmt.Sprintf("microcode: unsupported mnemonic %s", inst.Mnemonic))
	}
}

// requireComparison returns the carried last comparison or panics: a
// conditional jump/set with no preceding flag-producing operation is a
// programmer error.
func (e *Encoder) requireComparison() Comparison {
	if e.lastComparison == nil {
		panic("microcode: conditional jump/set with no prior comparison")
	}
	return *e.lastComparison
}

// resolveOperand maps a decoded operand to a Location without loading
// its value.
func (e *Encoder) resolveOperand(op amd64.Operand) (Location, error) {
	switch op.Kind {
	case amd64.Direct:
		return registerLocationAt(op.Reg, op.Width), nil
	case amd64.Indirect:
		t := e.newTemp(num.N64)
		if err := e.encodeMove(Temp(t), registerLocation(op.Reg)); err != nil {
			return Location{}, err
		}
		return Indirect(op.Width, 0, t), nil
	case amd64.IndirectDisplaced:
		base := e.newTemp(num.N64)
		if err := e.encodeMove(Temp(base), registerLocation(op.Reg)); err != nil {
			return Location{}, err
		}
		disp := e.newTemp(num.N64)
		e.emit(constOp(disp, num.NewInteger(num.N64, uint64(op.Disp))))
		sum := e.newTemp(num.N64)
		e.emit(binOp(OpAdd, sum, base, disp))
		return Indirect(op.Width, 0, sum), nil
	case amd64.Immediate:
		t := e.newTemp(op.Width)
		e.emit(constOp(t, num.NewInteger(op.Width, op.Imm)))
		return Temp(t), nil
	case amd64.Offset:
		t := e.newTemp(num.N64)
		e.emit(constOp(t, num.NewInteger(num.N64, uint64(op.Off))))
		return Temp(t), nil
	default:
		panic("microcode: unknown operand kind")
	}
}

// registerLocationAt is resolveOperand's Direct case: a register
// accessed at the operand's width. Implicit full-width register
// accesses (the RSP/RBP/RIP uses in push, pop, call and leave) go
// through registerLocation instead.
func registerLocationAt(reg amd64.Register, width num.DataType) Location {
	return Direct(width, 1, reg.Address())
}

// loadToTemp returns loc's value as a Temporary, reusing it if loc is
// already a Temp location and otherwise emitting a Mov into a fresh
// one.
func (e *Encoder) loadToTemp(loc Location) (Temporary, error) {
	if loc.Kind == LocTemp {
		return loc.AsTemp(), nil
	}
	t := e.newTemp(loc.Width)
	if err := e.encodeMove(Temp(t), loc); err != nil {
		return Temporary{}, err
	}
	return t, nil
}

// resolveAndLoad resolves one operand to a Location and loads it to a
// Temporary in sequence, the way each side of a binop/compare is
// processed fully before moving to the next.
func (e *Encoder) resolveAndLoad(op amd64.Operand) (Location, Temporary, error) {
	loc, err := e.resolveOperand(op)
	if err != nil {
		return Location{}, Temporary{}, err
	}
	t, err := e.loadToTemp(loc)
	if err != nil {
		return Location{}, Temporary{}, err
	}
	return loc, t, nil
}

// loadBoth loads both operands of a binop/compare, signed-casting the
// right one to the left's width if they disagree, and returns the
// left operand's Location (needed for write-back by binops) alongside
// both Temporaries.
func (e *Encoder) loadBoth(inst amd64.Instruction) (Location, Temporary, Temporary, error) {
	leftLoc, left, err := e.resolveAndLoad(inst.Operands[0])
	if err != nil {
		return Location{}, Temporary{}, Temporary{}, err
	}
	_, right, err := e.resolveAndLoad(inst.Operands[1])
	if err != nil {
		return Location{}, Temporary{}, Temporary{}, err
	}
	if left.Width != right.Width {
		e.emit(castOp(right, left.Width, true))
		right = Temporary{Width: left.Width, Index: right.Index}
	}
	return leftLoc, left, right, nil
}

func (e *Encoder) encodeBinop(kind OpKind, cmpKind ComparisonKind, inst amd64.Instruction) error {
	leftLoc, left, right, err := e.loadBoth(inst)
	if err != nil {
		return err
	}
	dest := e.newTemp(left.Width)
	e.emit(binOp(kind, dest, left, right))
	if err := e.encodeMove(leftLoc, Temp(dest)); err != nil {
		return err
	}
	e.lastComparison = &Comparison{Kind: cmpKind, A: left, B: right}
	return nil
}

func (e *Encoder) encodeCompare(cmpKind ComparisonKind, inst amd64.Instruction) error {
	_, left, right, err := e.loadBoth(inst)
	if err != nil {
		return err
	}
	e.lastComparison = &Comparison{Kind: cmpKind, A: left, B: right}
	return nil
}

func (e *Encoder) encodeMov(inst amd64.Instruction) error {
	markOps, markTemps := len(e.ops), e.temps
	destLoc, err := e.resolveOperand(inst.Operands[0])
	if err != nil {
		return err
	}
	srcLoc, err := e.resolveOperand(inst.Operands[1])
	if err != nil {
		return err
	}
	if destLoc.Width == srcLoc.Width {
		return e.encodeMove(destLoc, srcLoc)
	}
	// Width mismatch: discard everything buffered for this instruction
	// and re-encode as a cast-then-move.
	e.ops = e.ops[:markOps]
	e.temps = markTemps
	_, err = e.encodeMoveCasted(inst.Operands[0], inst.Operands[1], true)
	return err
}

// encodeMoveCasted resolves dest, loads src, signed- or
// unsigned-casts it to dest's width if needed, and moves it in.
func (e *Encoder) encodeMoveCasted(destOp, srcOp amd64.Operand, signed bool) (Location, error) {
	destLoc, err := e.resolveOperand(destOp)
	if err != nil {
		return Location{}, err
	}
	_, src, err := e.resolveAndLoad(srcOp)
	if err != nil {
		return Location{}, err
	}
	if src.Width != destLoc.Width {
		e.emit(castOp(src, destLoc.Width, signed))
		src = Temporary{Width: destLoc.Width, Index: src.Index}
	}
	return destLoc, e.encodeMove(destLoc, Temp(src))
}

func (e *Encoder) encodeLea(inst amd64.Instruction) error {
	destLoc, err := e.resolveOperand(inst.Operands[0])
	if err != nil {
		return err
	}
	srcLoc, err := e.resolveOperand(inst.Operands[1])
	if err != nil {
		return err
	}
	if srcLoc.Kind != LocIndirect {
		panic("microcode: lea requires an indirect source operand")
	}
	return e.encodeMove(destLoc, Temp(srcLoc.AddrTemp))
}

// encodePush implements Push(src): load RSP, load src's width in
// bytes, subtract in place, store src at the new top of stack, write
// the new stack pointer back.
func (e *Encoder) encodePush(src Location) error {
	sp := e.newTemp(num.N64)
	if err := e.encodeMove(Temp(sp), registerLocation(amd64.RSP)); err != nil {
		return err
	}
	size := e.newTemp(num.N64)
	e.emit(constOp(size, num.NewInteger(num.N64, uint64(src.Width.Bytes()))))
	e.emit(binOp(OpSub, sp, sp, size))
	if err := e.encodeMove(Indirect(src.Width, 0, sp), src); err != nil {
		return err
	}
	return e.encodeMove(registerLocation(amd64.RSP), Temp(sp))
}

// encodePop implements Pop(dest): symmetric with Push, adding instead
// of subtracting.
func (e *Encoder) encodePop(dest Location) error {
	sp := e.newTemp(num.N64)
	if err := e.encodeMove(Temp(sp), registerLocation(amd64.RSP)); err != nil {
		return err
	}
	if err := e.encodeMove(dest, Indirect(dest.Width, 0, sp)); err != nil {
		return err
	}
	size := e.newTemp(num.N64)
	e.emit(constOp(size, num.NewInteger(num.N64, uint64(dest.Width.Bytes()))))
	e.emit(binOp(OpAdd, sp, sp, size))
	return e.encodeMove(registerLocation(amd64.RSP), Temp(sp))
}

func (e *Encoder) encodeCall(inst amd64.Instruction) error {
	if err := e.encodePush(registerLocation(amd64.RIP)); err != nil {
		return err
	}
	return e.encodeJump(inst, True())
}

func (e *Encoder) encodeRet() error {
	target := e.newTemp(num.N64)
	if err := e.encodePop(Temp(target)); err != nil {
		return err
	}
	e.emit(jumpOp(target, True(), false))
	return nil
}

func (e *Encoder) encodeLeave() error {
	if err := e.encodeMove(registerLocation(amd64.RSP), registerLocation(amd64.RBP)); err != nil {
		return err
	}
	return e.encodePop(registerLocation(amd64.RBP))
}

// encodeJump resolves inst's sole operand (a branch offset) and emits
// an unconditional-in-form Jump carrying cond. Jmp/Call always pass
// True(); Je/Jg pass Equal/Greater over the carried comparison.
func (e *Encoder) encodeJump(inst amd64.Instruction, cond Condition) error {
	op := inst.Operands[len(inst.Operands)-1]
	if op.Kind != amd64.Offset {
		panic("microcode: jump/call requires a branch-offset operand")
	}
	loc, err := e.resolveOperand(op)
	if err != nil {
		return err
	}
	if loc.Kind != LocTemp || loc.Width != num.N64 {
		panic("microcode: jump target must resolve to an n64 temporary")
	}
	e.emit(jumpOp(loc.AsTemp(), cond, true))
	return nil
}

func (e *Encoder) encodeSet(inst amd64.Instruction) error {
	destLoc, err := e.resolveOperand(inst.Operands[0])
	if err != nil {
		return err
	}
	target := e.newTemp(destLoc.Width)
	e.emit(setOp(target, Less(e.requireComparison())))
	return e.encodeMove(destLoc, Temp(target))
}
