package amd64

import (
	"fmt"

	"github.com/symlift/symlift/pkg/num"
)

// OperandKind tags the shape of one instruction operand.
type OperandKind uint8

const (
	// Direct names a register accessed by value.
	Direct OperandKind = iota
	// Indirect names a memory cell whose address is exactly a register's
	// value ([reg]).
	Indirect
	// IndirectDisplaced names a memory cell at register+displacement
	// ([reg+disp]).
	IndirectDisplaced
	// Immediate carries a constant value known at decode time.
	Immediate
	// Offset carries a branch displacement (relative or absolute target).
	Offset
)

// Operand is one decoded machine-instruction operand.
type Operand struct {
	Kind  OperandKind
	Width num.DataType // meaningful for Direct, Indirect, IndirectDisplaced, Immediate
	Reg   Register     // meaningful for Direct, Indirect, IndirectDisplaced
	Disp  int64        // meaningful for IndirectDisplaced
	Imm   uint64       // meaningful for Immediate
	Off   int64        // meaningful for Offset
}

func OpDirect(reg Register, width num.DataType) Operand {
	return Operand{Kind: Direct, Reg: reg, Width: width}
}

func OpIndirect(reg Register, width num.DataType) Operand {
	return Operand{Kind: Indirect, Reg: reg, Width: width}
}

func OpIndirectDisplaced(reg Register, disp int64, width num.DataType) Operand {
	return Operand{Kind: IndirectDisplaced, Reg: reg, Disp: disp, Width: width}
}

func OpImmediate(value uint64, width num.DataType) Operand {
	return Operand{Kind: Immediate, Imm: value, Width: width}
}

func OpOffset(value int64) Operand {
	return Operand{Kind: Offset, Off: value}
}

func (o Operand) String() string {
	switch o.Kind {
	case Direct:
		return o.Reg.String()
	case Indirect:
		return fmt.Sprintf("[%s]", o.Reg)
	case IndirectDisplaced:
		sign := "+"
		disp := o.Disp
		if disp < 0 {
			sign = "-"
			disp = -disp
		}
		return fmt.Sprintf("[%s%s%#x]", o.Reg, sign, disp)
	case Immediate:
		return fmt.Sprintf("%#x", o.Imm)
	case Offset:
		return fmt.Sprintf("%+#x", o.Off)
	default:
		return "?"
	}
}
