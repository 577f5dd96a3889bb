package symexec

import (
	"fmt"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/num"
	"github.com/symlift/symlift/pkg/solver"
)

// doSyscall emulates three Linux syscall numbers (read, write, exit);
// anything else is a programmer error (unsupported syscall numbers are
// out of scope).
func (s *State) doSyscall(number uint64) *Event {
	switch number {
	case 0, 1:
		return s.doReadWrite(number == 0)
	case 60:
		return &Event{Kind: EventExit}
	default:
		panic(fmt.Sprintf("symexec: do_syscall: unimplemented syscall number %d", number))
	}
}

// doReadWrite emulates syscalls 0 (read) and 1 (write): one fresh
// symbol per byte, named in the "stdin" or "stdout" namespace. Reads
// also install that symbol into main memory at the buffer address;
// writes don't touch memory, since the symbol already stands in for
// whatever value would have been observed leaving the process.
func (s *State) doReadWrite(read bool) *Event {
	buf := s.GetReg(amd64.RSI)
	count := s.GetReg(amd64.RDX)
	if count.Kind != solver.ExprConst || count.Width != num.N64 {
		panic("symexec: do_syscall: read/write byte count must be a concrete n64 value")
	}
	byteCount := count.Value

	ns := NamespaceStdout
	counter := &s.stdoutSymbols
	kind := StdioStdout
	if read {
		ns = NamespaceStdin
		counter = &s.stdinSymbols
		kind = StdioStdin
	}

	var accesses []StdioAccess
	for i := uint64(0); i < byteCount; i++ {
		sym := Symbol{Width: num.N8, Namespace: ns, Index: *counter}
		*counter++
		value := sym.Expr()

		target := solver.Add(buf, solver.Const(num.N64, i))
		if read {
			s.Main.WriteExpr(target, value)
		}

		var disp int64
		hasDisp := i > 0
		if hasDisp {
			disp = int64(i)
		}
		loc := AbstractLocation{
			IP:      s.IP,
			Trace:   append([]uint64(nil), s.Trace...),
			Storage: IndirectStorage(num.N8, amd64.RSI, disp, hasDisp),
		}
		s.Symbols[sym] = loc
		accesses = append(accesses, StdioAccess{Symbol: sym, Access: TypedMemoryAccess{Addr: target, Width: num.N8}})
	}

	return &Event{Kind: EventStdio, StdioKind: kind, StdioAccess: accesses}
}
