package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/symlift/symlift/pkg/num"
)

// DecodeError reports that the input bytes are not one of the curated
// forms this decoder understands. It is a boundary error, not a
// programmer error: malformed or unsupported input bytes are an
// ordinary, recoverable failure for a caller feeding in arbitrary data.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("amd64: decode error at byte %d: %s", e.Offset, e.Reason)
}

const (
	rexW = 0x08
	rexR = 0x04
	rexX = 0x02
	rexB = 0x01
)

type decoder struct {
	b      []byte
	pos    int
	rex    byte
	hasRex bool
}

func (d *decoder) remaining() int { return len(d.b) - d.pos }

func (d *decoder) u8() (byte, error) {
	if d.remaining() < 1 {
		return 0, &DecodeError{d.pos, "truncated instruction"}
	}
	v := d.b[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) i8() (int64, error) {
	v, err := d.u8()
	return int64(int8(v)), err
}

func (d *decoder) i32() (int64, error) {
	if d.remaining() < 4 {
		return 0, &DecodeError{d.pos, "truncated 32-bit immediate/displacement"}
	}
	v := int32(binary.LittleEndian.Uint32(d.b[d.pos:]))
	d.pos += 4
	return int64(v), nil
}

func (d *decoder) u32() (uint64, error) {
	if d.remaining() < 4 {
		return 0, &DecodeError{d.pos, "truncated 32-bit immediate"}
	}
	v := binary.LittleEndian.Uint32(d.b[d.pos:])
	d.pos += 4
	return uint64(v), nil
}

// opWidth returns the operand-size width implied by REX.W: 64-bit when
// set, 32-bit otherwise. The 16-bit operand-size prefix (0x66) is not
// part of the curated subset.
func (d *decoder) opWidth() num.DataType {
	if d.hasRex && d.rex&rexW != 0 {
		return num.N64
	}
	return num.N32
}

type modrm struct {
	mod, reg, rm uint8
}

func (d *decoder) modRM() (modrm, error) {
	raw, err := d.u8()
	if err != nil {
		return modrm{}, err
	}
	m := modrm{mod: raw >> 6, reg: (raw >> 3) & 7, rm: raw & 7}
	if d.hasRex {
		if d.rex&rexR != 0 {
			m.reg += 8
		}
		if d.rex&rexB != 0 {
			m.rm += 8
		}
	}
	return m, nil
}

// rmOperand resolves the r/m field of a just-read ModRM byte to an
// Operand of the given width. SIB bytes and RIP-relative addressing
// are outside the curated subset.
func (d *decoder) rmOperand(m modrm, width num.DataType) (Operand, error) {
	if m.mod == 3 {
		return OpDirect(Register(m.rm), width), nil
	}
	if m.rm&7 == 4 {
		return Operand{}, &DecodeError{d.pos, "SIB addressing is not supported"}
	}
	if m.mod == 0 && m.rm&7 == 5 {
		return Operand{}, &DecodeError{d.pos, "RIP-relative addressing is not supported"}
	}
	base := Register(m.rm)
	switch m.mod {
	case 0:
		return OpIndirect(base, width), nil
	case 1:
		disp, err := d.i8()
		if err != nil {
			return Operand{}, err
		}
		return OpIndirectDisplaced(base, disp, width), nil
	case 2:
		disp, err := d.i32()
		if err != nil {
			return Operand{}, err
		}
		return OpIndirectDisplaced(base, disp, width), nil
	default:
		return Operand{}, &DecodeError{d.pos, "unreachable mod"}
	}
}

// Decode reads one instruction from the front of b and returns it
// along with the number of bytes consumed. It understands exactly the
// mnemonics pkg/microcode.Encoder knows how to lift; anything else is
// a DecodeError.
func Decode(b []byte) (Instruction, int, error) {
	d := &decoder{b: b}

	op, err := d.u8()
	if err != nil {
		return Instruction{}, 0, err
	}
	if op >= 0x40 && op <= 0x4f {
		d.rex = op
		d.hasRex = true
		op, err = d.u8()
		if err != nil {
			return Instruction{}, 0, err
		}
	}

	switch op {
	case 0x03: // ADD r, r/m
		return d.decodeRegRM(Add)
	case 0x3b: // CMP r, r/m
		return d.decodeRegRM(Cmp)
	case 0x85: // TEST r/m, r
		return d.decodeRMReg(Test)
	case 0x89: // MOV r/m, r (store)
		return d.decodeStore(Mov)
	case 0x8d: // LEA r, m
		return d.decodeLea()
	case 0x83: // group 1, r/m, imm8 (only /5 SUB is in the curated set)
		return d.decodeGroup1Imm8()
	case 0xc7: // group 11, r/m, imm32 (only /0 MOV)
		return d.decodeGroup11Imm32()
	case 0xc3:
		return Instruction{Mnemonic: Ret}, d.pos, nil
	case 0xc9:
		return Instruction{Mnemonic: Leave}, d.pos, nil
	case 0x90:
		return Instruction{Mnemonic: Nop}, d.pos, nil
	case 0xeb:
		return d.decodeJumpRel8(Jmp)
	case 0x74:
		return d.decodeJumpRel8(Je)
	case 0x7f:
		return d.decodeJumpRel8(Jg)
	case 0xe9:
		return d.decodeJumpRel32(Jmp)
	case 0xe8:
		return d.decodeJumpRel32(Call)
	case 0x0f:
		return d.decodeTwoByte()
	}

	// PUSH/POP r64, opcode encodes the register in its low 3 bits.
	if op&0xf8 == 0x50 {
		return d.decodePushPop(Push, op&0x07)
	}
	if op&0xf8 == 0x58 {
		return d.decodePushPop(Pop, op&0x07)
	}
	// MOV r32/r64, imm (full-size immediate form).
	if op&0xf8 == 0xb8 {
		return d.decodeMovImm(op & 0x07)
	}

	return Instruction{}, 0, &DecodeError{0, fmt.Sprintf("unsupported opcode %#x", op)}
}

func (d *decoder) decodeTwoByte() (Instruction, int, error) {
	op2, err := d.u8()
	if err != nil {
		return Instruction{}, 0, err
	}
	switch op2 {
	case 0x05:
		return Instruction{Mnemonic: Syscall}, d.pos, nil
	case 0xaf: // IMUL r, r/m
		return d.decodeRegRM(Imul)
	case 0xb6: // MOVZX r32/64, r/m8
		return d.decodeMovzx()
	case 0x84:
		return d.decodeJumpRel32(Je)
	case 0x8f:
		return d.decodeJumpRel32(Jg)
	case 0x9c: // SETL r/m8
		return d.decodeSetl()
	}
	return Instruction{}, 0, &DecodeError{d.pos, fmt.Sprintf("unsupported two-byte opcode 0f %#x", op2)}
}

// decodeRegRM decodes "mnemonic reg, r/m" with reg as the left operand.
func (d *decoder) decodeRegRM(m Mnemonic) (Instruction, int, error) {
	width := d.opWidth()
	mrm, err := d.modRM()
	if err != nil {
		return Instruction{}, 0, err
	}
	rm, err := d.rmOperand(mrm, width)
	if err != nil {
		return Instruction{}, 0, err
	}
	reg := OpDirect(Register(mrm.reg), width)
	return Instruction{Mnemonic: m, Operands: []Operand{reg, rm}}, d.pos, nil
}

// decodeRMReg decodes "mnemonic r/m, reg" with r/m as the left operand.
func (d *decoder) decodeRMReg(m Mnemonic) (Instruction, int, error) {
	width := d.opWidth()
	mrm, err := d.modRM()
	if err != nil {
		return Instruction{}, 0, err
	}
	rm, err := d.rmOperand(mrm, width)
	if err != nil {
		return Instruction{}, 0, err
	}
	reg := OpDirect(Register(mrm.reg), width)
	return Instruction{Mnemonic: m, Operands: []Operand{rm, reg}}, d.pos, nil
}

// decodeStore decodes "mnemonic r/m, reg" where r/m is the destination.
func (d *decoder) decodeStore(m Mnemonic) (Instruction, int, error) {
	return d.decodeRMReg(m)
}

func (d *decoder) decodeLea() (Instruction, int, error) {
	width := d.opWidth()
	mrm, err := d.modRM()
	if err != nil {
		return Instruction{}, 0, err
	}
	if mrm.mod == 3 {
		return Instruction{}, 0, &DecodeError{d.pos, "lea requires a memory operand"}
	}
	rm, err := d.rmOperand(mrm, width)
	if err != nil {
		return Instruction{}, 0, err
	}
	reg := OpDirect(Register(mrm.reg), width)
	return Instruction{Mnemonic: Lea, Operands: []Operand{reg, rm}}, d.pos, nil
}

// decodeGroup1Imm8 handles opcode 0x83 /r ib; only /5 (SUB) is curated.
func (d *decoder) decodeGroup1Imm8() (Instruction, int, error) {
	width := d.opWidth()
	mrm, err := d.modRM()
	if err != nil {
		return Instruction{}, 0, err
	}
	if mrm.reg&7 != 5 {
		return Instruction{}, 0, &DecodeError{d.pos, "only the SUB form of opcode 0x83 is supported"}
	}
	rm, err := d.rmOperand(mrm, width)
	if err != nil {
		return Instruction{}, 0, err
	}
	imm, err := d.u8()
	if err != nil {
		return Instruction{}, 0, err
	}
	immOp := OpImmediate(uint64(imm), num.N8)
	return Instruction{Mnemonic: Sub, Operands: []Operand{rm, immOp}}, d.pos, nil
}

// decodeGroup11Imm32 handles opcode 0xc7 /r id; only /0 (MOV) is curated.
func (d *decoder) decodeGroup11Imm32() (Instruction, int, error) {
	width := d.opWidth()
	mrm, err := d.modRM()
	if err != nil {
		return Instruction{}, 0, err
	}
	if mrm.reg&7 != 0 {
		return Instruction{}, 0, &DecodeError{d.pos, "only the MOV form of opcode 0xc7 is supported"}
	}
	rm, err := d.rmOperand(mrm, width)
	if err != nil {
		return Instruction{}, 0, err
	}
	imm, err := d.u32()
	if err != nil {
		return Instruction{}, 0, err
	}
	return Instruction{Mnemonic: Mov, Operands: []Operand{rm, OpImmediate(imm, num.N32)}}, d.pos, nil
}

func (d *decoder) decodePushPop(m Mnemonic, lowBits byte) (Instruction, int, error) {
	reg := lowBits
	if d.hasRex && d.rex&rexB != 0 {
		reg += 8
	}
	return Instruction{Mnemonic: m, Operands: []Operand{OpDirect(Register(reg), num.N64)}}, d.pos, nil
}

func (d *decoder) decodeMovImm(lowBits byte) (Instruction, int, error) {
	reg := lowBits
	if d.hasRex && d.rex&rexB != 0 {
		reg += 8
	}
	width := d.opWidth()
	imm, err := d.u32()
	if err != nil {
		return Instruction{}, 0, err
	}
	dest := OpDirect(Register(reg), width)
	return Instruction{Mnemonic: Mov, Operands: []Operand{dest, OpImmediate(imm, num.N32)}}, d.pos, nil
}

func (d *decoder) decodeMovzx() (Instruction, int, error) {
	destWidth := d.opWidth()
	mrm, err := d.modRM()
	if err != nil {
		return Instruction{}, 0, err
	}
	rm, err := d.rmOperand(mrm, num.N8)
	if err != nil {
		return Instruction{}, 0, err
	}
	dest := OpDirect(Register(mrm.reg), destWidth)
	return Instruction{Mnemonic: Movzx, Operands: []Operand{dest, rm}}, d.pos, nil
}

func (d *decoder) decodeSetl() (Instruction, int, error) {
	mrm, err := d.modRM()
	if err != nil {
		return Instruction{}, 0, err
	}
	rm, err := d.rmOperand(mrm, num.N8)
	if err != nil {
		return Instruction{}, 0, err
	}
	return Instruction{Mnemonic: Setl, Operands: []Operand{rm}}, d.pos, nil
}

func (d *decoder) decodeJumpRel8(m Mnemonic) (Instruction, int, error) {
	rel, err := d.i8()
	if err != nil {
		return Instruction{}, 0, err
	}
	return Instruction{Mnemonic: m, Operands: []Operand{OpOffset(rel)}}, d.pos, nil
}

func (d *decoder) decodeJumpRel32(m Mnemonic) (Instruction, int, error) {
	rel, err := d.i32()
	if err != nil {
		return Instruction{}, 0, err
	}
	return Instruction{Mnemonic: m, Operands: []Operand{OpOffset(rel)}}, d.pos, nil
}
