package sequencer

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
)

func testSession(t *testing.T) (*Session, *manualClock) {
	t.Helper()
	clk := newManualClock()
	s := NewSession(NewProject("test"), NewHistory(WithClock(clk)))
	return s, clk
}

func mustAddTrack(t *testing.T, s *Session, name string, kind TrackKind) TrackID {
	t.Helper()
	id, err := s.AddTrack(name, kind)
	if err != nil {
		t.Fatalf("AddTrack(%q): %v", name, err)
	}
	return id
}

func TestSoloPrecedence(t *testing.T) {
	s, _ := testSession(t)
	a := mustAddTrack(t, s, "A", KindSteps)
	b := mustAddTrack(t, s, "B", KindSteps)

	if err := s.ToggleSolo(b); err != nil {
		t.Fatal(err)
	}
	p := s.Snapshot()
	if p.Audible(a) || !p.Audible(b) {
		t.Errorf("with B soloed: A=%v B=%v, want A silent, B audible", p.Audible(a), p.Audible(b))
	}

	if err := s.ToggleSolo(b); err != nil {
		t.Fatal(err)
	}
	p = s.Snapshot()
	if !p.Audible(a) || !p.Audible(b) {
		t.Errorf("after unsolo: A=%v B=%v, want both audible", p.Audible(a), p.Audible(b))
	}
}

func TestSoloOverridesMute(t *testing.T) {
	s, _ := testSession(t)
	a := mustAddTrack(t, s, "A", KindSteps)
	b := mustAddTrack(t, s, "B", KindSteps)
	s.ToggleMute(a)
	s.ToggleSolo(a)
	s.ToggleSolo(b)

	p := s.Snapshot()
	if !p.Audible(a) {
		t.Error("soloed and muted track should be audible")
	}
	if !p.Audible(b) {
		t.Error("soloed track should be audible")
	}
}

func TestToggleStepOutOfRange(t *testing.T) {
	s, _ := testSession(t)
	id := mustAddTrack(t, s, "Kick", KindSteps)
	before := s.Project()
	entries := s.History().Len()

	for _, step := range []int{99, 16, -1} {
		if err := s.ToggleStep(id, step); err != nil {
			t.Errorf("ToggleStep(%d) error = %v, want nil", step, err)
		}
	}
	if !reflect.DeepEqual(s.Project(), before) {
		t.Error("out of range toggle changed the project")
	}
	if n := s.History().Len(); n != entries {
		t.Errorf("history grew from %d to %d", entries, n)
	}
}

func TestToggleStepWrongKind(t *testing.T) {
	s, _ := testSession(t)
	id := mustAddTrack(t, s, "Lead", KindNotes)
	err := s.ToggleStep(id, 0)
	if !errors.Is(err, ErrWrongTrackKind) {
		t.Errorf("ToggleStep() on notes track = %v, want ErrWrongTrackKind", err)
	}
}

func TestUnknownTrack(t *testing.T) {
	s, _ := testSession(t)
	err := s.SetTrackVolume(42, 0)
	if !errors.Is(err, ErrUnknownTrack) || ftag.Get(err) != TagNotFound {
		t.Errorf("SetTrackVolume(42) = %v (tag %v)", err, ftag.Get(err))
	}
}

func TestMixerClamps(t *testing.T) {
	s, _ := testSession(t)
	id := mustAddTrack(t, s, "Kick", KindSteps)

	tests := []struct {
		name  string
		apply func() error
		check func(tr *Track) bool
	}{
		{"volume high", func() error { return s.SetTrackVolume(id, 40) }, func(tr *Track) bool { return tr.Volume == MaxVolumeDB }},
		{"volume low", func() error { return s.SetTrackVolume(id, -200) }, func(tr *Track) bool { return tr.Volume == MinVolumeDB }},
		{"pan right", func() error { return s.SetTrackPan(id, 3) }, func(tr *Track) bool { return tr.Pan == 1 }},
		{"pan left", func() error { return s.SetTrackPan(id, -3) }, func(tr *Track) bool { return tr.Pan == -1 }},
		{"reverb", func() error { return s.SetTrackEffect(id, Reverb, 2) }, func(tr *Track) bool { return tr.Effects.Reverb == 1 }},
		{"delay", func() error { return s.SetTrackEffect(id, Delay, -1) }, func(tr *Track) bool { return tr.Effects.Delay == 0 }},
		{"distortion", func() error { return s.SetTrackEffect(id, Distortion, 0.25) }, func(tr *Track) bool { return tr.Effects.Distortion == 0.25 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.apply(); err != nil {
				t.Fatalf("error = %v, want clamp", err)
			}
			if tr := s.Snapshot().Track(id); !tt.check(tr) {
				t.Errorf("unexpected track state %+v", *tr)
			}
		})
	}

	if err := s.SetTrackEffect(id, EffectKind(7), 0.5); ftag.Get(err) != TagInvalid {
		t.Errorf("unknown effect tag = %v, want %v", ftag.Get(err), TagInvalid)
	}
}

func TestEditTrackIsAtomic(t *testing.T) {
	s, clk := testSession(t)
	id := mustAddTrack(t, s, "Lead", KindNotes)
	entries := s.History().Len()

	name, sound := "renamed", Pitch(60)
	err := s.EditTrack(id, TrackEdit{Name: &name, Sound: &sound})
	if !errors.Is(err, ErrWrongTrackKind) {
		t.Fatalf("error = %v, want ErrWrongTrackKind", err)
	}
	if got := s.Snapshot().Track(id).Name; got != "Lead" {
		t.Errorf("name = %q after rejected edit", got)
	}
	if got := s.History().Len(); got != entries {
		t.Errorf("history entries = %d, want %d", got, entries)
	}

	clk.Advance(time.Second)
	volume, pan := 40.0, math.NaN()
	if err := s.EditTrack(id, TrackEdit{Name: &name, Volume: &volume, Pan: &pan}); err != nil {
		t.Fatal(err)
	}
	tr := s.Snapshot().Track(id)
	if tr.Name != name || tr.Volume != MaxVolumeDB || tr.Pan != -1 {
		t.Errorf("track = %+v", *tr)
	}
	if got := s.History().Len(); got != entries+1 {
		t.Errorf("history entries = %d, want %d", got, entries+1)
	}
}

func TestSetBPMClamps(t *testing.T) {
	s, _ := testSession(t)
	for _, tt := range []struct{ in, want int }{{10, MinBPM}, {999, MaxBPM}, {128, 128}} {
		s.SetBPM(tt.in)
		if got := s.Snapshot().BPM; got != tt.want {
			t.Errorf("SetBPM(%d) -> %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTrackIDsNeverReused(t *testing.T) {
	s, _ := testSession(t)
	a := mustAddTrack(t, s, "A", KindSteps)
	if err := s.RemoveTrack(a); err != nil {
		t.Fatal(err)
	}
	b := mustAddTrack(t, s, "B", KindSteps)
	if a == b {
		t.Errorf("track id %d reused", a)
	}
}

func TestRemoveTrackDropsBlocks(t *testing.T) {
	s, _ := testSession(t)
	a := mustAddTrack(t, s, "A", KindSteps)
	b := mustAddTrack(t, s, "B", KindSteps)
	s.AddBlock(PatternBlock{TrackID: a, StartBar: 0, LengthBars: 2})
	s.AddBlock(PatternBlock{TrackID: b, StartBar: 0, LengthBars: 4})

	s.RemoveTrack(a)
	p := s.Snapshot()
	if len(p.Arrangement) != 1 || p.Arrangement[0].TrackID != b {
		t.Errorf("arrangement = %+v", p.Arrangement)
	}
}

func TestSnapshotIsFrozen(t *testing.T) {
	s, _ := testSession(t)
	id := mustAddTrack(t, s, "Kick", KindSteps)
	snap := s.Snapshot()

	s.ToggleStep(id, 0)
	if snap.Track(id).ActivePattern().Steps[0] {
		t.Error("edit leaked into an earlier snapshot")
	}
	if !s.Snapshot().Track(id).ActivePattern().Steps[0] {
		t.Error("edit missing from the new snapshot")
	}
}

func TestNotes(t *testing.T) {
	s, _ := testSession(t)
	id := mustAddTrack(t, s, "Lead", KindNotes)
	c4, _ := ParsePitch("C4")
	e4, _ := ParsePitch("E4")

	n1, err := s.AddNote(id, c4, 0, 4, 100)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddNote(id, c4, 0, 2, 90); !errors.Is(err, ErrNoteExists) || ftag.Get(err) != TagConflict {
		t.Errorf("duplicate AddNote() = %v, want conflict", err)
	}
	n2, err := s.AddNote(id, e4, 4, 0, 300)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddNote(id, e4, 16, 1, 100); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("AddNote(start 16) = %v, want ErrOutOfRange", err)
	}

	notes := s.Snapshot().Track(id).ActivePattern().Notes
	if len(notes) != 2 {
		t.Fatalf("notes = %+v", notes)
	}
	if notes[1].DurationSteps != 1 || notes[1].Velocity != MaxVelocity {
		t.Errorf("clamping failed: %+v", notes[1])
	}

	before := s.Project()
	if err := s.MoveNote(id, n2, c4, 0); !errors.Is(err, ErrNoteExists) {
		t.Errorf("colliding MoveNote() = %v", err)
	}
	if !reflect.DeepEqual(s.Project(), before) {
		t.Error("rejected move changed the project")
	}

	if err := s.MoveNote(id, n2, c4, 8); err != nil {
		t.Fatal(err)
	}
	if err := s.ResizeNote(id, n1, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveNote(id, 999); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("RemoveNote(999) = %v", err)
	}
	notes = s.Snapshot().Track(id).ActivePattern().Notes
	if notes[0].DurationSteps != 1 || notes[1].StartStep != 8 || notes[1].Pitch != c4 {
		t.Errorf("notes after edits = %+v", notes)
	}
}

func TestPatternVariants(t *testing.T) {
	s, _ := testSession(t)
	id := mustAddTrack(t, s, "Kick", KindSteps)
	s.ToggleStep(id, 0)

	idx, err := s.AddPattern(id)
	if err != nil || idx != 1 {
		t.Fatalf("AddPattern() = %d, %v", idx, err)
	}
	s.ToggleStep(id, 4)
	if err := s.SelectPattern(id, 0); err != nil {
		t.Fatal(err)
	}
	tr := s.Snapshot().Track(id)
	if tr.Patterns[0].Steps[4] || !tr.Patterns[1].Steps[0] || !tr.Patterns[1].Steps[4] {
		t.Errorf("patterns = %+v", tr.Patterns)
	}
	if err := s.SelectPattern(id, 5); ftag.Get(err) != TagInvalid {
		t.Errorf("SelectPattern(5) = %v", err)
	}

	s.ClearPattern(id)
	for i, on := range s.Snapshot().Track(id).ActivePattern().Steps {
		if on {
			t.Errorf("step %d still set after ClearPattern", i)
		}
	}
}

func TestUndoDoesNotGrowHistory(t *testing.T) {
	s, clk := testSession(t)
	id := mustAddTrack(t, s, "Kick", KindSteps)
	clk.Advance(time.Second)
	s.ToggleStep(id, 0)
	clk.Advance(time.Second)

	n := s.History().Len()
	for s.Undo() {
	}
	for s.Redo() {
	}
	if got := s.History().Len(); got != n {
		t.Errorf("history length %d after replay, want %d", got, n)
	}
	if !s.Snapshot().Track(id).ActivePattern().Steps[0] {
		t.Error("redo did not restore the last edit")
	}
}

func TestSaveVersionDropScenario(t *testing.T) {
	s, clk := testSession(t)
	id := mustAddTrack(t, s, "Kick", KindSteps)
	clk.Advance(time.Second)
	s.ToggleStep(id, 0)
	clk.Advance(time.Second)

	drop := s.SaveVersion("Drop", "")
	saved := s.Project()

	for _, step := range []int{2, 4, 6} {
		s.ToggleStep(id, step)
		clk.Advance(50 * time.Millisecond)
	}
	clk.Advance(time.Second)

	versions, _ := s.Versions()
	if last := versions[len(versions)-1]; last.Name != "Toggle step" || !last.IsAutoSave {
		t.Fatalf("rapid toggles did not coalesce into one auto-save: %+v", versions)
	}

	v, err := s.JumpToVersion("Drop")
	if err != nil {
		t.Fatal(err)
	}
	if v.ID != drop.ID {
		t.Errorf("jumped to %s, want %s", v.ID, drop.ID)
	}
	if !reflect.DeepEqual(s.Project(), saved) {
		t.Errorf("state after jump = %+v, want %+v", s.Project(), saved)
	}

	s.ToggleStep(id, 8)
	versions, cur := s.Versions()
	if cur != len(versions)-1 {
		t.Errorf("current = %d, want tail", cur)
	}
	if versions[cur-1].ID != drop.ID {
		t.Errorf("entry before the new edit = %q, want Drop", versions[cur-1].Name)
	}
	for _, v := range versions[:cur] {
		if v.Name == "Toggle step" && v.Timestamp.After(drop.Timestamp) {
			t.Errorf("auto-save %s after Drop survived truncation", v.ID)
		}
	}
}

func TestJumpToUnknownVersion(t *testing.T) {
	s, _ := testSession(t)
	before := s.Snapshot()
	if _, err := s.JumpToVersion("nope"); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("JumpToVersion() = %v", err)
	}
	if s.Snapshot() != before {
		t.Error("failed jump replaced the project")
	}
}

func TestOnChange(t *testing.T) {
	s, _ := testSession(t)
	var got []*Project
	s.OnChange(func(p *Project) { got = append(got, p) })

	id := mustAddTrack(t, s, "Kick", KindSteps)
	s.ToggleStep(id, 99) // no-op, no notification
	s.Undo()
	if len(got) != 2 {
		t.Fatalf("notifications = %d, want 2", len(got))
	}
	if len(got[1].Tracks) != 0 {
		t.Error("undo notification carried the wrong snapshot")
	}
}
