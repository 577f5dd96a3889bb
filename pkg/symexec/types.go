// Package symexec runs microcode against an abstract machine state backed
// by a solver: two symbolic memory spaces, per-symbol provenance, and
// events for control transfers and environment interactions.
package symexec

import (
	"fmt"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/num"
	"github.com/symlift/symlift/pkg/solver"
)

// Namespace tags which kind of symbol a Symbol names. Five tags are
// defined: one for temporaries, the two memory spaces' default symbols,
// and the two standard-stream symbols syscalls generate. Nothing in this
// package mints temporary-tagged symbols; EvaluateCondition reads the
// temporaries' live expressions directly.
type Namespace string

const (
	NamespaceTemp   Namespace = "T"
	NamespaceMem    Namespace = "mem"
	NamespaceReg    Namespace = "reg"
	NamespaceStdin  Namespace = "stdin"
	NamespaceStdout Namespace = "stdout"
)

// namespaceTag gives each namespace a small, stable number so symbol ids
// stay unique across namespaces without a shared global counter: a
// forked state's memories keep counting defaults independently, and
// their ids still never collide because the namespace tag occupies the
// high bits.
var namespaceTag = map[Namespace]uint64{
	NamespaceTemp:   1,
	NamespaceMem:    2,
	NamespaceReg:    3,
	NamespaceStdin:  4,
	NamespaceStdout: 5,
}

// Symbol is (width, namespace, index), a free variable's identity. Two
// Symbols with equal fields name the same value.
type Symbol struct {
	Width     num.DataType
	Namespace Namespace
	Index     uint64
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s%d:%s", s.Namespace, s.Index, s.Width)
}

// id derives the solver.SymbolID this Symbol is represented by. The
// namespace tag in the high byte keeps ids from different namespaces
// from ever colliding, even though each namespace's index starts at 0.
func (s Symbol) id() solver.SymbolID {
	return solver.SymbolID(namespaceTag[s.Namespace]<<56 | (s.Index & (1<<56 - 1)))
}

// Expr builds the solver-level leaf this Symbol is represented by.
func (s Symbol) Expr() solver.Expr {
	return solver.Sym(s.id(), s.Width)
}

// Storage is the shape of a storage location an AbstractLocation points
// at: either a register (Direct) or a base-plus-optional-displacement
// memory access (Indirect), mirroring microcode.Location without
// depending on a live address temporary.
type Storage struct {
	Direct bool

	Width num.DataType
	Base  amd64.Register // meaningful when !Direct

	HasDisp bool // meaningful when !Direct
	Disp    int64
}

func DirectStorage(reg amd64.Register, width num.DataType) Storage {
	return Storage{Direct: true, Base: reg, Width: width}
}

func IndirectStorage(width num.DataType, base amd64.Register, disp int64, hasDisp bool) Storage {
	return Storage{Width: width, Base: base, HasDisp: hasDisp, Disp: disp}
}

// AbstractLocation records where a symbol could be observed in a real
// execution: the instruction that produced it, the call trace at that
// point, and the storage form.
type AbstractLocation struct {
	IP      uint64
	Trace   []uint64
	Storage Storage
}

// TypedMemoryAccess pairs a symbolic address with the width accessed
// through it.
type TypedMemoryAccess struct {
	Addr  solver.Expr
	Width num.DataType
}

// StdioKind distinguishes which standard stream a Stdio event reports.
type StdioKind uint8

const (
	StdioStdin StdioKind = iota
	StdioStdout
)

func (k StdioKind) String() string {
	if k == StdioStdout {
		return "stdout"
	}
	return "stdin"
}

// EventKind tags which of the three Step-observable events occurred.
type EventKind uint8

const (
	EventJump EventKind = iota
	EventStdio
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventJump:
		return "jump"
	case EventStdio:
		return "stdio"
	case EventExit:
		return "exit"
	default:
		return "?"
	}
}

// StdioAccess pairs the symbol generated for one byte of a read/write
// syscall with the memory access it came from.
type StdioAccess struct {
	Symbol Symbol
	Access TypedMemoryAccess
}

// Event is the tagged union of observable effects Step can return:
// Jump carries the un-evaluated condition so the caller can fork on
// it, Stdio reports one read/write syscall's byte symbols, Exit
// signals program termination.
type Event struct {
	Kind EventKind

	// EventJump
	JumpTarget    solver.Expr
	JumpCondition solver.Condition
	JumpRelative  bool

	// EventStdio
	StdioKind   StdioKind
	StdioAccess []StdioAccess
}
