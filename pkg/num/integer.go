package num

import "fmt"

// Integer is a (width, 64-bit unsigned bit pattern) pair. The bit
// pattern always holds only as many meaningful low bits as Width
// allows; higher bits are kept zeroed by NewInteger/Truncate.
type Integer struct {
	Width DataType
	Bits  uint64
}

// NewInteger builds an Integer, truncating bits above Width's mask.
func NewInteger(width DataType, bits uint64) Integer {
	return Integer{Width: width, Bits: bits & width.mask()}
}

// Truncate narrows the integer to a smaller width, dropping high bits.
func (i Integer) Truncate(to DataType) Integer {
	return NewInteger(to, i.Bits)
}

// SignExtend widens the integer to a larger width, replicating the
// sign bit of the current width into the new high bits.
func (i Integer) SignExtend(to DataType) Integer {
	if to.Bits() <= i.Width.Bits() {
		return i.Truncate(to)
	}
	bits := i.Bits
	if bits&i.Width.signBit() != 0 {
		bits |= ^i.Width.mask()
	}
	return NewInteger(to, bits)
}

// ZeroExtend widens the integer to a larger width with zero high bits.
func (i Integer) ZeroExtend(to DataType) Integer {
	return NewInteger(to, i.Bits)
}

// Cast changes the integer's width, sign- or zero-extending when
// widening and truncating when narrowing. It is the runtime
// counterpart of the encoder's Cast micro-operation.
func (i Integer) Cast(to DataType, signed bool) Integer {
	if to.Bits() <= i.Width.Bits() {
		return i.Truncate(to)
	}
	if signed {
		return i.SignExtend(to)
	}
	return i.ZeroExtend(to)
}

// String renders "<hex>:<width>", the literal form pinned by the
// text-rendering grammar (e.g. "0xa:n64").
func (i Integer) String() string {
	return fmt.Sprintf("%#x:%s", i.Bits, i.Width)
}
