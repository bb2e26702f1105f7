package ton

import "testing"

func TestParseTON(t *testing.T) {
	tests := []struct {
		in    string
		want  uint64
		valid bool
	}{
		{"1", 1_000_000_000, true},
		{"1.5", 1_500_000_000, true},
		{" 0.000000001 ", 1, true},
		{"150", 150_000_000_000, true},
		{"0", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTON(tt.in)
			if !tt.valid {
				if err == nil {
					t.Fatalf("ParseTON(%q) expected error, got %d", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTON(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseTON(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatTONRoundTrip(t *testing.T) {
	for _, nano := range []uint64{1, 999, 1_000_000_000, 1_500_000_000, 123_456_789_012} {
		got, err := ParseTON(FormatTON(nano))
		if err != nil {
			t.Fatalf("ParseTON(FormatTON(%d)): %v", nano, err)
		}
		if got != nano {
			t.Errorf("round trip of %d = %d", nano, got)
		}
	}
}
