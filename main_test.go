package main

import (
	"testing"

	"beatseq/sequencer"
)

func TestDemoProject(t *testing.T) {
	p, err := demoProject(sequencer.NewProject("demo"))
	if err != nil {
		t.Fatalf("demoProject() error = %v", err)
	}
	if len(p.Tracks) != 4 {
		t.Errorf("tracks = %d, want 4", len(p.Tracks))
	}
	if n := p.ArrangementLength(); n != 4 {
		t.Errorf("ArrangementLength() = %d, want 4", n)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestIsFile(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"groove", false},
		{"groove.yaml", true},
		{"songs/groove", true},
		{"groove.yml", true},
	}
	for _, tt := range tests {
		if got := isFile(tt.ref); got != tt.want {
			t.Errorf("isFile(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}
}
