// Package microcode implements the location algebra, the micro-operation
// set, its pinned text rendering, and the encoder that lowers one decoded
// amd64 instruction at a time into a sequence of micro-operations.
package microcode

import (
	"fmt"

	"github.com/symlift/symlift/pkg/num"
)

// Temporary is a single-assignment, width-tagged value slot, identified
// by a monotonically allocated index.
type Temporary struct {
	Width num.DataType
	Index int
}

func (t Temporary) String() string {
	return fmt.Sprintf("T%d:%s", t.Index, t.Width)
}

// LocKind tags which of the three location shapes a Location holds.
type LocKind uint8

const (
	LocTemp LocKind = iota
	LocDirect
	LocIndirect
)

// Location is a tagged union: a temporary, a fixed address in a numbered
// memory space, or an address held in a temporary.
type Location struct {
	Kind LocKind

	Width num.DataType // value width, all kinds

	Index int // temporary index, LocTemp only

	Space   int    // memory space, LocDirect/LocIndirect
	Address uint64 // absolute address, LocDirect only

	AddrTemp Temporary // address-holding temporary, LocIndirect only
}

// Temp builds a Temp location out of a Temporary.
func Temp(t Temporary) Location {
	return Location{Kind: LocTemp, Width: t.Width, Index: t.Index}
}

// AsTemp recovers the Temporary a Temp location was built from. Callers
// must only call this on a location whose Kind is LocTemp.
func (l Location) AsTemp() Temporary {
	return Temporary{Width: l.Width, Index: l.Index}
}

// Direct builds a Direct location at a fixed address in a memory space.
func Direct(width num.DataType, space int, address uint64) Location {
	return Location{Kind: LocDirect, Width: width, Space: space, Address: address}
}

// Indirect builds an Indirect location whose address lives in addrTemp.
func Indirect(width num.DataType, space int, addrTemp Temporary) Location {
	return Location{Kind: LocIndirect, Width: width, Space: space, AddrTemp: addrTemp}
}

func (l Location) String() string {
	switch l.Kind {
	case LocTemp:
		return fmt.Sprintf("T%d:%s", l.Index, l.Width)
	case LocDirect:
		return fmt.Sprintf("[m%d][%#x:%s]", l.Space, l.Address, l.Width)
	case LocIndirect:
		return fmt.Sprintf("[m%d][(%s):%s]", l.Space, l.AddrTemp, l.Width)
	default:
		return "?"
	}
}
