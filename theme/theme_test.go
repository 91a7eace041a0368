package theme

import (
	"strings"
	"testing"
)

func TestParseGPL(t *testing.T) {
	doc := `GIMP Palette
Name: Test
Columns: 2
# comment
0 0 0	black
255 128 0	orange
300 0 0	out of range
`
	p, err := ParseGPL(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseGPL() error = %v", err)
	}
	if p.Name != "Test" || len(p.Colors) != 2 {
		t.Errorf("ParseGPL() = %+v", p)
	}

	if _, err := ParseGPL(strings.NewReader("GIMP Palette\n")); err == nil {
		t.Error("ParseGPL() of empty palette should fail")
	}
}

func TestLookup(t *testing.T) {
	p := &Palette{Colors: []RGB{{0, 0, 0}, {200, 100, 50}}}
	tests := []struct {
		norm float64
		want RGB
	}{
		{-1, RGB{0, 0, 0}},
		{0.5, RGB{100, 50, 25}},
		{1, RGB{200, 100, 50}},
		{2, RGB{200, 100, 50}},
	}
	for _, tt := range tests {
		if got := p.Lookup(tt.norm); got != tt.want {
			t.Errorf("Lookup(%v) = %v, want %v", tt.norm, got, tt.want)
		}
	}
	if got := (RGB{255, 0, 16}).Hex(); got != "#ff0010" {
		t.Errorf("Hex() = %q", got)
	}
}
