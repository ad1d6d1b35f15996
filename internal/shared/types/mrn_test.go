package types

import "testing"

func TestParseMRN(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"0000000000", true},
		{"0000000018", true},
		{"0000000001", false},
		{"123456789", false},
		{"12345678901", false},
		{"12345abcde", false},
		{"", false},
	}

	for _, tt := range tests {
		_, err := ParseMRN(tt.input)
		if tt.ok && err != nil {
			t.Errorf("ParseMRN(%q) failed: %v", tt.input, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseMRN(%q) accepted, want error", tt.input)
		}
	}
}

func TestMRNMasked(t *testing.T) {
	m := MRN("1234567897")
	if got := m.Masked(); got != "12*******7" {
		t.Errorf("Masked() = %q", got)
	}
	if got := MRN("123").Masked(); got != "**********" {
		t.Errorf("short Masked() = %q", got)
	}
}
