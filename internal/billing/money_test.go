package billing

import "testing"

func TestParsePence(t *testing.T) {
	tests := []struct {
		in      string
		want    Pence
		wantErr bool
	}{
		{"60", 6000, false},
		{"60.00", 6000, false},
		{"60.5", 6050, false},
		{"0.05", 5, false},
		{"-12.34", -1234, false},
		{" 55 ", 5500, false},
		{"1.234", 0, true},
		{"", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePence(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePence(%q) expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePence(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePence(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   Pence
		want string
	}{
		{6000, "60.00"},
		{4000, "40.00"},
		{5, "0.05"},
		{-1234, "-12.34"},
		{0, "0.00"},
	}
	for _, tt := range tests {
		if got := tt.in.Format(); got != tt.want {
			t.Errorf("Pence(%d).Format() = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHalfRoundsHalfUp(t *testing.T) {
	tests := []struct {
		in   Pence
		want Pence
	}{
		{8000, 4000}, // 80.00 -> 40.00
		{6000, 3000},
		{5, 3}, // 0.025 rounds up to 0.03
		{1, 1},
		{0, 0},
	}
	for _, tt := range tests {
		if got := tt.in.Half(); got != tt.want {
			t.Errorf("Pence(%d).Half() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTaxOn(t *testing.T) {
	tests := []struct {
		net    Pence
		rateBP int
		want   Pence
	}{
		{6000, 0, 0},
		{6000, 2000, 1200}, // 20% of 60.00
		{1000, 1750, 175},  // 17.5% of 10.00
		{333, 1000, 33},    // 0.333 rounds down
		{335, 1000, 34},    // 0.335 rounds up
		{-100, 2000, 0},
	}
	for _, tt := range tests {
		if got := TaxOn(tt.net, tt.rateBP); got != tt.want {
			t.Errorf("TaxOn(%d, %d) = %d, want %d", tt.net, tt.rateBP, got, tt.want)
		}
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(55.0); got != 5500 {
		t.Errorf("FromFloat(55.0) = %d, want 5500", got)
	}
	if got := FromFloat(0.005); got != 1 {
		t.Errorf("FromFloat(0.005) = %d, want 1", got)
	}
	if got := FromFloat(-2.5); got != -250 {
		t.Errorf("FromFloat(-2.5) = %d, want -250", got)
	}
}
