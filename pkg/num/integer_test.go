package num

import "testing"

func TestIntegerString(t *testing.T) {
	cases := []struct {
		name string
		in   Integer
		want string
	}{
		{"n64 small", NewInteger(N64, 0xa), "0xa:n64"},
		{"n8 imm", NewInteger(N8, 0x10), "0x10:n8"},
		{"n64 offset", NewInteger(N64, 0x9), "0x9:n64"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.String(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIntegerTruncate(t *testing.T) {
	i := NewInteger(N64, 0x1_0000_0001)
	got := i.Truncate(N32)
	if got.Bits != 1 {
		t.Errorf("Truncate: got %#x, want 0x1", got.Bits)
	}
	if got.Width != N32 {
		t.Errorf("Truncate: width = %s, want n32", got.Width)
	}
}

func TestIntegerSignExtend(t *testing.T) {
	cases := []struct {
		name string
		in   Integer
		to   DataType
		want uint64
	}{
		{"positive n8 to n64", NewInteger(N8, 0x10), N64, 0x10},
		{"negative n8 to n64", NewInteger(N8, 0xf0), N64, 0xffff_ffff_ffff_fff0},
		{"negative n32 to n64", NewInteger(N32, 0xffff_ffe0), N64, 0xffff_ffff_ffff_ffe0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.SignExtend(tc.to)
			if got.Bits != tc.want {
				t.Errorf("got %#x, want %#x", got.Bits, tc.want)
			}
		})
	}
}

func TestIntegerZeroExtend(t *testing.T) {
	got := NewInteger(N8, 0xf0).ZeroExtend(N64)
	if got.Bits != 0xf0 {
		t.Errorf("got %#x, want 0xf0", got.Bits)
	}
}

func TestIntegerCast(t *testing.T) {
	// sub eax, 0xa : an 8-bit immediate signed-cast to n32.
	i := NewInteger(N8, 0x0a).Cast(N32, true)
	if i.Bits != 0xa || i.Width != N32 {
		t.Errorf("got %v, want {0xa n32}", i)
	}

	// narrowing cast just truncates regardless of signedness.
	n := NewInteger(N64, 0xffff_ffff_ffff_ffff).Cast(N8, true)
	if n.Bits != 0xff {
		t.Errorf("got %#x, want 0xff", n.Bits)
	}
}

func TestDataTypeBytes(t *testing.T) {
	cases := map[DataType]int{N8: 1, N16: 2, N32: 4, N64: 8}
	for dt, want := range cases {
		if got := dt.Bytes(); got != want {
			t.Errorf("%s.Bytes() = %d, want %d", dt, got, want)
		}
	}
}
