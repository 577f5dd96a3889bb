package microcode

import "strings"

// Microcode is an ordered sequence of micro-operations, the lifted form
// of one or more machine instructions. Its text rendering is part of
// the interface: the test suite pins it byte for byte.
type Microcode struct {
	Ops []MicroOperation
}

func (m Microcode) String() string {
	var b strings.Builder
	b.WriteString("Microcode [\n")
	for _, op := range m.Ops {
		b.WriteString("    ")
		b.WriteString(op.String())
		b.WriteByte('\n')
	}
	b.WriteByte(']')
	return b.String()
}
