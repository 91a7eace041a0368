package sequencer

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
)

func testHistory(opts ...HistoryOption) (*History, *manualClock) {
	clk := newManualClock()
	h := NewHistory(append([]HistoryOption{WithClock(clk)}, opts...)...)
	return h, clk
}

func projectWithBPM(bpm int) *Project {
	p := NewProject("test")
	p.BPM = bpm
	return p
}

func TestHistoryCoalescing(t *testing.T) {
	tests := []struct {
		name    string
		spacing time.Duration
		edits   int
		want    int // entries after the baseline
	}{
		{"within window", 100 * time.Millisecond, 5, 1},
		{"just under window", DefaultDebounce - time.Millisecond, 4, 1},
		{"beyond window", DefaultDebounce + time.Millisecond, 5, 5},
		{"at window", DefaultDebounce, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, clk := testHistory()
			h.Reset(projectWithBPM(100), "Initial state")
			for i := 0; i < tt.edits; i++ {
				h.Commit(projectWithBPM(101+i), "edit", true)
				clk.Advance(tt.spacing)
			}
			if got := h.Len() - 1; got != tt.want {
				t.Errorf("entries = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHistoryCoalescedEntryHoldsLastSnapshot(t *testing.T) {
	h, clk := testHistory()
	h.Reset(projectWithBPM(100), "Initial state")
	for bpm := 110; bpm <= 130; bpm += 10 {
		h.Commit(projectWithBPM(bpm), "tempo", true)
		clk.Advance(50 * time.Millisecond)
	}
	clk.Advance(DefaultDebounce)

	versions, cur := h.Versions()
	if len(versions) != 2 || cur != 1 {
		t.Fatalf("Versions() = %d entries, current %d; want 2, 1", len(versions), cur)
	}
	if versions[1].Pending {
		t.Error("entry still pending after the window elapsed")
	}
	p, ok := h.Undo()
	if !ok || p.BPM != 100 {
		t.Fatalf("Undo() = %v, %v; want baseline", p, ok)
	}
	p, ok = h.Redo()
	if !ok || p.BPM != 130 {
		t.Errorf("Redo() bpm = %d, want 130", p.BPM)
	}
}

func TestHistoryUndoRedoInverse(t *testing.T) {
	h, clk := testHistory()
	states := []*Project{projectWithBPM(100)}
	h.Reset(states[0], "Initial state")
	for i := 1; i <= 6; i++ {
		p := projectWithBPM(100 + i)
		p.Name = fmt.Sprintf("edit %d", i)
		states = append(states, p)
		h.Commit(p, p.Name, true)
		clk.Advance(time.Second)
	}

	var last *Project
	for i := 0; i < 6; i++ {
		p, ok := h.Undo()
		if !ok {
			t.Fatalf("Undo() #%d failed", i+1)
		}
		last = p
	}
	if !reflect.DeepEqual(last, states[0]) {
		t.Errorf("after undo x6 got %+v, want %+v", last, states[0])
	}
	if _, ok := h.Undo(); ok {
		t.Error("Undo() at oldest entry succeeded")
	}

	for i := 0; i < 6; i++ {
		p, ok := h.Redo()
		if !ok {
			t.Fatalf("Redo() #%d failed", i+1)
		}
		last = p
	}
	if !reflect.DeepEqual(last, states[6]) {
		t.Errorf("after redo x6 got %+v, want %+v", last, states[6])
	}
	if _, ok := h.Redo(); ok {
		t.Error("Redo() at newest entry succeeded")
	}
}

func TestHistoryUndoFinalizesPending(t *testing.T) {
	h, _ := testHistory()
	h.Reset(projectWithBPM(100), "Initial state")
	h.Commit(projectWithBPM(120), "tempo", true)

	if p, ok := h.Undo(); !ok || p.BPM != 100 {
		t.Fatalf("Undo() = %v, %v", p, ok)
	}
	// The next commit must not coalesce into the entry we just left.
	h.Commit(projectWithBPM(90), "tempo", true)
	if n := h.Len(); n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}
	if h.CanRedo() {
		t.Error("CanRedo() after a new edit")
	}
}

func TestHistoryBranchTruncation(t *testing.T) {
	h, clk := testHistory()
	h.Reset(projectWithBPM(100), "Initial state")
	for i := 1; i <= 3; i++ {
		h.Commit(projectWithBPM(100+i), "edit", true)
		clk.Advance(time.Second)
	}
	h.Undo()
	h.Undo()
	h.Commit(projectWithBPM(200), "branch", true)

	if _, ok := h.Redo(); ok {
		t.Error("Redo() after branching succeeded")
	}
	if n := h.Len(); n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}
}

func TestHistoryBounded(t *testing.T) {
	const size, extra = 10, 4
	h, clk := testHistory(WithMaxSize(size), WithDebounce(0))
	h.Reset(projectWithBPM(100), "Initial state")
	for i := 1; i < size+extra; i++ {
		h.Commit(projectWithBPM(100+i), fmt.Sprintf("edit %d", i), true)
		clk.Advance(time.Millisecond)
	}

	versions, cur := h.Versions()
	if len(versions) != size {
		t.Fatalf("entries = %d, want %d", len(versions), size)
	}
	if cur != size-1 {
		t.Errorf("current = %d, want %d", cur, size-1)
	}
	if want := fmt.Sprintf("edit %d", extra); versions[0].Name != want {
		t.Errorf("oldest = %q, want %q", versions[0].Name, want)
	}

	steps := 0
	for h.CanUndo() {
		h.Undo()
		steps++
	}
	if steps != size-1 {
		t.Errorf("undo steps = %d, want %d", steps, size-1)
	}
}

func TestHistoryEvictionKeepsNamedSaves(t *testing.T) {
	h, clk := testHistory(WithMaxSize(4), WithDebounce(0))
	h.Reset(projectWithBPM(100), "Initial state")
	h.SaveVersion(projectWithBPM(101), "Verse", "")
	for i := 0; i < 6; i++ {
		h.Commit(projectWithBPM(110+i), "edit", true)
		clk.Advance(time.Millisecond)
	}

	versions, cur := h.Versions()
	if len(versions) != 4 || cur != 3 {
		t.Fatalf("Versions() = %d entries, current %d", len(versions), cur)
	}
	if versions[0].Name != "Verse" {
		t.Errorf("oldest = %q, want the named save", versions[0].Name)
	}
}

func TestHistoryEvictsBaselineBeforeNamedSaves(t *testing.T) {
	h, clk := testHistory(WithMaxSize(3), WithDebounce(0))
	h.Reset(projectWithBPM(100), "Initial state")
	h.SaveVersion(projectWithBPM(101), "A", "")
	h.SaveVersion(projectWithBPM(102), "B", "")
	h.SaveVersion(projectWithBPM(103), "C", "")
	clk.Advance(time.Millisecond)

	versions, cur := h.Versions()
	if len(versions) != 3 {
		t.Fatalf("entries = %d, want 3", len(versions))
	}
	if p := versions[cur]; p.Name != "C" {
		t.Errorf("current = %q, want C", p.Name)
	}
	p, ok := h.Undo()
	if !ok || p.BPM != 102 {
		t.Errorf("Undo() = %v, %v; want B", p, ok)
	}
}

func TestHistoryPendingNotAddressable(t *testing.T) {
	h, clk := testHistory()
	h.Reset(projectWithBPM(100), "Initial state")
	v := h.Commit(projectWithBPM(120), "tempo", true)

	_, _, err := h.JumpTo(v.ID)
	if !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("JumpTo(pending) error = %v, want ErrVersionNotFound", err)
	}
	if ftag.Get(err) != TagNotFound {
		t.Errorf("tag = %v, want %v", ftag.Get(err), TagNotFound)
	}

	clk.Advance(DefaultDebounce)
	p, got, err := h.JumpTo(v.ID)
	if err != nil {
		t.Fatalf("JumpTo() after window: %v", err)
	}
	if p.BPM != 120 || got.ID != v.ID {
		t.Errorf("JumpTo() = bpm %d id %s", p.BPM, got.ID)
	}
}

func TestHistoryFlush(t *testing.T) {
	h, _ := testHistory()
	h.Reset(projectWithBPM(100), "Initial state")
	h.Commit(projectWithBPM(120), "tempo", true)
	h.Flush()
	h.Commit(projectWithBPM(130), "tempo", true)
	if n := h.Len(); n != 3 {
		t.Errorf("Len() = %d, want 3", n)
	}
}

func TestHistoryEntriesDoNotAlias(t *testing.T) {
	h, _ := testHistory()
	p := NewProject("alias")
	p.Tracks = append(p.Tracks, Track{ID: 1, Kind: KindSteps, Patterns: []Pattern{{Steps: make([]bool, 16)}}})
	p.NextTrackID = 2
	h.Reset(p, "Initial state")

	p.Tracks[0].Patterns[0].Steps[3] = true
	p.Tracks[0].Name = "changed"
	h.Commit(p, "edit", true)

	got, ok := h.Undo()
	if !ok {
		t.Fatal("Undo() failed")
	}
	if got.Tracks[0].Patterns[0].Steps[3] || got.Tracks[0].Name == "changed" {
		t.Error("history entry aliases the live project")
	}
	got.Tracks[0].Patterns[0].Steps[0] = true
	h.Redo()
	again, _ := h.Undo()
	if again.Tracks[0].Patterns[0].Steps[0] {
		t.Error("returned snapshot aliases the stored entry")
	}
}

func TestHistoryResetReleasesEntries(t *testing.T) {
	h, clk := testHistory()
	h.Reset(projectWithBPM(100), "Initial state")
	for bpm := 101; bpm < 105; bpm++ {
		clk.Advance(time.Second)
		h.Commit(projectWithBPM(bpm), "Set BPM", true)
	}

	h.Reset(projectWithBPM(90), "Load")
	if h.Len() != 1 || h.Current() != 0 {
		t.Fatalf("Len() = %d, Current() = %d, want 1, 0", h.Len(), h.Current())
	}
	for i, e := range h.entries[1:cap(h.entries)] {
		if e != nil {
			t.Errorf("backing slot %d still holds %s", i+1, e.ID)
		}
	}
}
