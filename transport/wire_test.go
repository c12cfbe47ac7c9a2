package transport

import "testing"

func TestVariableWidth(t *testing.T) {
	cases := []struct {
		v    uint64
		want int
	}{
		{0, 1}, {0xff, 1},
		{0x100, 2}, {0xffff, 2},
		{0x10000, 4}, {0xffffffff, 4},
		{0x100000000, 8},
	}
	for _, c := range cases {
		if got := variableWidth(c.v); got != c.want {
			t.Errorf("variableWidth(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestPutGetUintN(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8} {
		dst := appendUintN(nil, 0x0102030405060708, n)
		if len(dst) != n {
			t.Fatalf("width %d: expected %d bytes, got %d", n, n, len(dst))
		}
		got, rest, ok := getUintN(dst, n)
		if !ok || len(rest) != 0 {
			t.Fatalf("width %d: decode failed", n)
		}
		want := uint64(0x0102030405060708)
		switch n {
		case 1:
			want &= 0xff
		case 2:
			want &= 0xffff
		case 4:
			want &= 0xffffffff
		}
		if got != want {
			t.Errorf("width %d: got %#x want %#x", n, got, want)
		}
	}
}

func TestWidthCodeRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8} {
		if got := codeWidth(widthCode(n)); got != n {
			t.Errorf("codeWidth(widthCode(%d)) = %d", n, got)
		}
	}
}
