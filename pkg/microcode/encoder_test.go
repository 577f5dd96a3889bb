package microcode

import (
	"errors"
	"strings"
	"testing"

	"github.com/symlift/symlift/pkg/amd64"
	"github.com/symlift/symlift/pkg/num"
)

// decodeOne decodes exactly one instruction from bytes, failing the
// test if any bytes are left over or decoding fails.
func decodeOne(t *testing.T, bytes []byte) amd64.Instruction {
	t.Helper()
	inst, n, err := amd64.Decode(bytes)
	if err != nil {
		t.Fatalf("decode %x: %v", bytes, err)
	}
	if n != len(bytes) {
		t.Fatalf("decode %x: consumed %d bytes, want %d", bytes, n, len(bytes))
	}
	return inst
}

// expect renders the want string the way the original literal fixtures
// are written: free-form indented text, collapsed into the single-line
// "Microcode [ ... ]" form.
func expect(lines string) string {
	var b strings.Builder
	b.WriteString("Microcode [\n")
	for _, line := range strings.Split(lines, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(trimmed)
		b.WriteByte('\n')
	}
	b.WriteByte(']')
	return b.String()
}

func assertEncodes(t *testing.T, enc *Encoder, bytes []byte, want string) {
	t.Helper()
	inst := decodeOne(t, bytes)
	if err := enc.Encode(inst); err != nil {
		t.Fatalf("encode %x: %v", bytes, err)
	}
	got := enc.Finish().String()
	if got != expect(want) {
		t.Errorf("encode %x = %s, want %s", bytes, got, expect(want))
	}
}

func TestEncodeBinops(t *testing.T) {
	assertEncodes(t, NewEncoder(), []byte{0x4c, 0x03, 0x47, 0x0a}, `
		mov T0:n64 = [m1][0x40:n64]
		mov T1:n64 = [m1][0x38:n64]
		const T2:n64 = 0xa:n64
		add T3:n64 = T1:n64 + T2:n64
		mov T4:n64 = [m0][(T3:n64):n64]
		add T5:n64 = T0:n64 + T4:n64
		mov [m1][0x40:n64] = T5:n64
	`)

	assertEncodes(t, NewEncoder(), []byte{0x48, 0x83, 0xec, 0x10}, `
		mov T0:n64 = [m1][0x20:n64]
		const T1:n8 = 0x10:n8
		cast T1:n8 to n64 signed
		sub T2:n64 = T0:n64 - T1:n64
		mov [m1][0x20:n64] = T2:n64
	`)

	assertEncodes(t, NewEncoder(), []byte{0x83, 0xe8, 0x20}, `
		mov T0:n32 = [m1][0x0:n32]
		const T1:n8 = 0x20:n8
		cast T1:n8 to n32 signed
		sub T2:n32 = T0:n32 - T1:n32
		mov [m1][0x0:n32] = T2:n32
	`)
}

func TestEncodeMoves(t *testing.T) {
	assertEncodes(t, NewEncoder(), []byte{0x89, 0xd6}, `
		mov [m1][0x30:n32] = [m1][0x10:n32]
	`)

	assertEncodes(t, NewEncoder(), []byte{0x48, 0xc7, 0xc0, 0x3c, 0x00, 0x00, 0x00}, `
		const T0:n32 = 0x3c:n32
		cast T0:n32 to n64 signed
		mov [m1][0x0:n64] = T0:n64
	`)

	assertEncodes(t, NewEncoder(), []byte{0x89, 0x7d, 0xfc}, `
		mov T0:n64 = [m1][0x28:n64]
		const T1:n64 = 0xfffffffffffffffc:n64
		add T2:n64 = T0:n64 + T1:n64
		mov [m0][(T2:n64):n32] = [m1][0x38:n32]
	`)

	assertEncodes(t, NewEncoder(), []byte{0xc7, 0x45, 0xf8, 0x0a, 0x00, 0x00, 0x00}, `
		mov T0:n64 = [m1][0x28:n64]
		const T1:n64 = 0xfffffffffffffff8:n64
		add T2:n64 = T0:n64 + T1:n64
		const T3:n32 = 0xa:n32
		mov [m0][(T2:n64):n32] = T3:n32
	`)

	assertEncodes(t, NewEncoder(), []byte{0x48, 0x8d, 0x45, 0xf4}, `
		mov T0:n64 = [m1][0x28:n64]
		const T1:n64 = 0xfffffffffffffff4:n64
		add T2:n64 = T0:n64 + T1:n64
		mov [m1][0x0:n64] = T2:n64
	`)

	assertEncodes(t, NewEncoder(), []byte{0x0f, 0xb6, 0xc0}, `
		mov T0:n8 = [m1][0x0:n8]
		cast T0:n8 to n32 unsigned
		mov [m1][0x0:n32] = T0:n32
	`)

	assertEncodes(t, NewEncoder(), []byte{0x55}, `
		mov T0:n64 = [m1][0x20:n64]
		const T1:n64 = 0x8:n64
		sub T0:n64 = T0:n64 - T1:n64
		mov [m0][(T0:n64):n64] = [m1][0x28:n64]
		mov [m1][0x20:n64] = T0:n64
	`)

	assertEncodes(t, NewEncoder(), []byte{0x5d}, `
		mov T0:n64 = [m1][0x20:n64]
		mov [m1][0x28:n64] = [m0][(T0:n64):n64]
		const T1:n64 = 0x8:n64
		add T0:n64 = T0:n64 + T1:n64
		mov [m1][0x20:n64] = T0:n64
	`)
}

func TestEncodeCompares(t *testing.T) {
	assertEncodes(t, NewEncoder(), []byte{0x3b, 0x45, 0xf8}, `
		mov T0:n32 = [m1][0x0:n32]
		mov T1:n64 = [m1][0x28:n64]
		const T2:n64 = 0xfffffffffffffff8:n64
		add T3:n64 = T1:n64 + T2:n64
		mov T4:n32 = [m0][(T3:n64):n32]
	`)

	enc := NewEncoder()
	assertEncodes(t, enc, []byte{0x85, 0xc0}, `
		mov T0:n32 = [m1][0x0:n32]
		mov T1:n32 = [m1][0x0:n32]
	`)
	assertEncodes(t, enc, []byte{0x0f, 0x9c, 0xc0}, `
		set T2:n8 if T0:n32 & T1:n32 less
		mov [m1][0x0:n8] = T2:n8
	`)
}

func TestEncodeJumps(t *testing.T) {
	assertEncodes(t, NewEncoder(), []byte{0xeb, 0x07}, `
		const T0:n64 = 0x7:n64
		jump by T0:n64
	`)

	enc := NewEncoder()
	assertEncodes(t, enc, []byte{0x85, 0xc0}, `
		mov T0:n32 = [m1][0x0:n32]
		mov T1:n32 = [m1][0x0:n32]
	`)
	assertEncodes(t, enc, []byte{0x7f, 0x09}, `
		const T2:n64 = 0x9:n64
		jump by T2:n64 if T0:n32 & T1:n32 greater
	`)
	assertEncodes(t, enc, []byte{0x48, 0x83, 0xec, 0x10}, `
		mov T3:n64 = [m1][0x20:n64]
		const T4:n8 = 0x10:n8
		cast T4:n8 to n64 signed
		sub T5:n64 = T3:n64 - T4:n64
		mov [m1][0x20:n64] = T5:n64
	`)
	assertEncodes(t, enc, []byte{0x74, 0x0e}, `
		const T6:n64 = 0xe:n64
		jump by T6:n64 if T3:n64 - T4:n64 equal
	`)

	assertEncodes(t, NewEncoder(), []byte{0xe8, 0x8a, 0xff, 0xff, 0xff}, `
		mov T0:n64 = [m1][0x20:n64]
		const T1:n64 = 0x8:n64
		sub T0:n64 = T0:n64 - T1:n64
		mov [m0][(T0:n64):n64] = [m1][0x80:n64]
		mov [m1][0x20:n64] = T0:n64
		const T2:n64 = 0xffffffffffffff8a:n64
		jump by T2:n64
	`)

	assertEncodes(t, NewEncoder(), []byte{0xc9}, `
		mov [m1][0x20:n64] = [m1][0x28:n64]
		mov T0:n64 = [m1][0x20:n64]
		mov [m1][0x28:n64] = [m0][(T0:n64):n64]
		const T1:n64 = 0x8:n64
		add T0:n64 = T0:n64 + T1:n64
		mov [m1][0x20:n64] = T0:n64
	`)

	assertEncodes(t, NewEncoder(), []byte{0xc3}, `
		mov T1:n64 = [m1][0x20:n64]
		mov T0:n64 = [m0][(T1:n64):n64]
		const T2:n64 = 0x8:n64
		add T1:n64 = T1:n64 + T2:n64
		mov [m1][0x20:n64] = T1:n64
		jump to T0:n64
	`)
}

func TestFinishPreservesCounterAndComparison(t *testing.T) {
	enc := NewEncoder()
	inst := decodeOne(t, []byte{0x85, 0xc0}) // test eax, eax
	if err := enc.Encode(inst); err != nil {
		t.Fatal(err)
	}
	first := enc.Finish()
	if len(first.Ops) != 2 {
		t.Fatalf("first batch: got %d ops, want 2", len(first.Ops))
	}

	jg := decodeOne(t, []byte{0x7f, 0x09})
	if err := enc.Encode(jg); err != nil {
		t.Fatal(err)
	}
	second := enc.Finish()
	if len(second.Ops) != 2 {
		t.Fatalf("second batch: got %d ops, want 2", len(second.Ops))
	}
	// Numbering continues from where the first batch left off (T2),
	// and the comparison carried across the Finish() call.
	if second.Ops[0].ConstDest.Index != 2 {
		t.Errorf("counter not preserved across Finish: got T%d, want T2", second.Ops[0].ConstDest.Index)
	}
}

func TestEncodeMoveWidthMismatchError(t *testing.T) {
	enc := NewEncoder()
	dest := Direct(num.N32, 1, 0)
	src := Direct(num.N64, 1, 0)
	err := enc.encodeMove(dest, src)
	if err == nil {
		t.Fatal("expected an EncodeError for mismatched widths")
	}
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("got %T, want *EncodeError", err)
	}
}
