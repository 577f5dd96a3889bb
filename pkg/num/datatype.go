// Package num holds the numeric and type primitives shared by the
// microcode encoder and the symbolic executor: a fixed set of integer
// widths and a width-tagged integer value.
package num

// DataType is a fixed integer width. Every value, location and
// micro-operand carries exactly one of these.
type DataType uint8

const (
	N8 DataType = iota
	N16
	N32
	N64

	dataTypeCount
)

var dataTypeNames = [dataTypeCount]string{
	N8:  "n8",
	N16: "n16",
	N32: "n32",
	N64: "n64",
}

var dataTypeBytes = [dataTypeCount]uint8{
	N8:  1,
	N16: 2,
	N32: 4,
	N64: 8,
}

// String renders the width the way the text-rendering grammar expects
// it to appear after a ':' (e.g. "n64").
func (d DataType) String() string {
	if d >= dataTypeCount {
		return "n?"
	}
	return dataTypeNames[d]
}

// Bytes returns the width's size in bytes.
func (d DataType) Bytes() int {
	if d >= dataTypeCount {
		return 0
	}
	return int(dataTypeBytes[d])
}

// Bits returns the width's size in bits.
func (d DataType) Bits() int {
	return d.Bytes() * 8
}

// mask returns the bit pattern with exactly Bits() low bits set.
func (d DataType) mask() uint64 {
	bits := d.Bits()
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}

// signBit returns the bit pattern with only the sign bit of this width
// set.
func (d DataType) signBit() uint64 {
	bits := d.Bits()
	if bits == 0 {
		return 0
	}
	return uint64(1) << uint(bits-1)
}
