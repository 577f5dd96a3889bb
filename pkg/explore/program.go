// Package explore forks symbolic execution at ambiguous jumps and runs
// the resulting branches across a bounded worker pool. It sits above
// pkg/symexec's substrate as a demo of the clone-on-fork resource
// policy, not a core module in its own right.
package explore

import (
	"fmt"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/microcode"
)

// Block is one decoded-and-lifted instruction: where it starts, where
// control falls through if nothing diverts it, and its microcode.
type Block struct {
	Addr uint64
	Next uint64
	Code microcode.Microcode
}

// Program is a flat, address-indexed instruction stream lifted ahead
// of time, the shape Explorer walks and forks over.
type Program struct {
	Blocks []Block
	byAddr map[uint64]int
}

// NewProgram decodes and encodes each of instructions in order
// starting at start, sharing a single Encoder so temporary numbering
// stays monotonic across the whole stream, the same way one real
// lifter pass would number them.
func NewProgram(start uint64, instructions [][]byte) (*Program, error) {
	enc := microcode.NewEncoder()
	p := &Program{byAddr: make(map[uint64]int, len(instructions))}
	addr := start
	for _, raw := range instructions {
		inst, n, err := amd64.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("explore: decode at %#x: %w", addr, err)
		}
		if err := enc.Encode(inst); err != nil {
			return nil, fmt.Errorf("explore: encode at %#x: %w", addr, err)
		}
		next := addr + uint64(n)
		p.byAddr[addr] = len(p.Blocks)
		p.Blocks = append(p.Blocks, Block{Addr: addr, Next: next, Code: enc.Finish()})
		addr = next
	}
	return p, nil
}

// blockAt looks up the block starting at addr, reporting false when
// addr falls outside the lifted stream (a call/jump to code this
// program never decoded).
func (p *Program) blockAt(addr uint64) (Block, bool) {
	i, ok := p.byAddr[addr]
	if !ok {
		return Block{}, false
	}
	return p.Blocks[i], true
}
