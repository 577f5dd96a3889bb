// Package amd64 supplies the decoded-instruction shapes the microcode
// encoder consumes, plus a curated decoder covering the mnemonics the
// encoder understands. It is not a general-purpose x86-64 decoder:
// unknown forms are a decode error, the same way the encoder treats
// unknown mnemonics as out of scope.
package amd64

import "github.com/symlift/symlift/pkg/num"

// Register names one of the sixteen general-purpose register families
// plus the instruction pointer. Subregisters of different widths
// (al/eax/rax, ...) all name the same Register; the width they are
// accessed at travels separately on the Operand.
type Register uint8

const (
	RAX Register = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP

	registerCount
)

var registerNames = [registerCount]string{
	RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx",
	RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
	RIP: "rip",
}

func (r Register) String() string {
	if r >= registerCount {
		return "r?"
	}
	return registerNames[r]
}

// Address returns the register's fixed byte offset into memory space 1
// (the register file). Aliased subregisters (e.g. al/eax/rax) share
// their family's base address.
func (r Register) Address() uint64 {
	return uint64(r) * 8
}

// Width returns the register family's natural (full) width. Accesses
// at a narrower width (e.g. eax, al) still use Address() as the base.
func (r Register) Width() num.DataType {
	return num.N64
}

// GeneralRegisters lists the sixteen general-purpose register families,
// excluding RIP, in the order comparisons and dumps should walk them.
var GeneralRegisters = []Register{
	RAX, RCX, RDX, RBX, RSP, RBP, RSI, RDI,
	R8, R9, R10, R11, R12, R13, R14, R15,
}
