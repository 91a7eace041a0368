package sequencer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
)

func TestStepDuration(t *testing.T) {
	tests := []struct {
		bpm, grid int
		want      time.Duration
	}{
		{120, 4, 125 * time.Millisecond},
		{60, 4, 250 * time.Millisecond},
		{120, 2, 250 * time.Millisecond},
		{0, 0, 125 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := StepDuration(tt.bpm, tt.grid); got != tt.want {
			t.Errorf("StepDuration(%d, %d) = %v, want %v", tt.bpm, tt.grid, got, tt.want)
		}
	}
}

func TestLoopTriggersOrder(t *testing.T) {
	s, _ := testSession(t)
	lead := mustAddTrack(t, s, "Lead", KindNotes)
	kick := mustAddTrack(t, s, "Kick", KindSteps)
	s.AddNote(lead, 67, 0, 1, 100)
	s.AddNote(lead, 60, 0, 1, 100)
	s.AddNote(lead, 64, 0, 2, 100)
	s.AddNote(lead, 72, 1, 1, 100)
	s.ToggleStep(kick, 0)

	got := s.Snapshot().LoopTriggers(0)
	want := []struct {
		track TrackID
		pitch Pitch
	}{{lead, 60}, {lead, 64}, {lead, 67}, {kick, 36}}
	if len(got) != len(want) {
		t.Fatalf("triggers = %+v", got)
	}
	for i, w := range want {
		if got[i].TrackID != w.track || got[i].Pitch != w.pitch {
			t.Errorf("trigger %d = track %d pitch %d, want track %d pitch %d", i, got[i].TrackID, got[i].Pitch, w.track, w.pitch)
		}
	}
	if got[1].Length != 2*s.Snapshot().StepDuration() {
		t.Errorf("note length = %v", got[1].Length)
	}
	if got := s.Snapshot().LoopTriggers(16); got != nil {
		t.Errorf("LoopTriggers(16) = %+v, want nil", got)
	}
}

func TestLoopTriggersMuteAndGain(t *testing.T) {
	s, _ := testSession(t)
	a := mustAddTrack(t, s, "A", KindSteps)
	b := mustAddTrack(t, s, "B", KindSteps)
	s.ToggleStep(a, 0)
	s.ToggleStep(b, 0)
	s.ToggleMute(a)
	s.SetTrackVolume(b, MinVolumeDB)
	s.SetMasterVolume(0.5)

	got := s.Snapshot().LoopTriggers(0)
	if len(got) != 1 || got[0].TrackID != b {
		t.Fatalf("triggers = %+v", got)
	}
	if got[0].Gain != 0 {
		t.Errorf("gain at -60 dB = %v, want 0", got[0].Gain)
	}
}

func TestArrangementTriggers(t *testing.T) {
	s, _ := testSession(t)
	kick := mustAddTrack(t, s, "Kick", KindSteps)
	s.ToggleStep(kick, 0)
	s.AddPattern(kick)
	s.ToggleStep(kick, 0)
	s.ToggleStep(kick, 4)

	if err := s.AddBlock(PatternBlock{TrackID: kick, StartBar: 0, LengthBars: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddBlock(PatternBlock{TrackID: kick, StartBar: 2, LengthBars: 1, Pattern: 1}); err != nil {
		t.Fatal(err)
	}
	p := s.Snapshot()
	if got := p.ArrangementLength(); got != 3 {
		t.Errorf("ArrangementLength() = %d, want 3", got)
	}

	count := func(bar, step int) int { return len(p.ArrangementTriggers(bar, step)) }
	if count(0, 0) != 1 || count(0, 4) != 0 {
		t.Error("bar 0 should play pattern 0")
	}
	if count(1, 0) != 0 {
		t.Error("bar 1 has no block")
	}
	if count(2, 0) != 0 || count(2, 4) != 1 {
		t.Error("bar 2 should play pattern 1")
	}
}

func TestBlockEditing(t *testing.T) {
	s, _ := testSession(t)
	kick := mustAddTrack(t, s, "Kick", KindSteps)
	s.AddBlock(PatternBlock{TrackID: kick, StartBar: 0, LengthBars: 2})
	s.AddBlock(PatternBlock{TrackID: kick, StartBar: 4, LengthBars: 2})

	if err := s.AddBlock(PatternBlock{TrackID: kick, StartBar: 1, LengthBars: 1}); err == nil {
		t.Error("overlapping AddBlock() succeeded")
	}
	if err := s.MoveBlock(kick, 4, 1); err == nil {
		t.Error("overlapping MoveBlock() succeeded")
	}
	if err := s.ResizeBlock(kick, 0, 5); err == nil {
		t.Error("overlapping ResizeBlock() succeeded")
	}
	if err := s.MoveBlock(kick, 4, 2); err != nil {
		t.Errorf("MoveBlock() = %v", err)
	}
	if err := s.ResizeBlock(kick, 2, 0); err == nil {
		t.Error("zero length block accepted")
	}
	if err := s.RemoveBlock(kick, 4); err == nil {
		t.Error("RemoveBlock() of a moved block succeeded")
	}
	if err := s.RemoveBlock(kick, 2); err != nil {
		t.Errorf("RemoveBlock() = %v", err)
	}
	if n := len(s.Snapshot().Arrangement); n != 1 {
		t.Errorf("blocks = %d, want 1", n)
	}
}

func TestBlockBounds(t *testing.T) {
	s, _ := testSession(t)
	kick := mustAddTrack(t, s, "Kick", KindSteps)

	tests := []struct {
		name  string
		block PatternBlock
		ok    bool
	}{
		{"overflowing start", PatternBlock{TrackID: kick, StartBar: math.MaxInt - 2, LengthBars: 10}, false},
		{"overflowing length", PatternBlock{TrackID: kick, StartBar: 2, LengthBars: math.MaxInt}, false},
		{"past last bar", PatternBlock{TrackID: kick, StartBar: MaxBars - 1, LengthBars: 2}, false},
		{"last bar", PatternBlock{TrackID: kick, StartBar: MaxBars - 1, LengthBars: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddBlock(tt.block)
			if tt.ok && err != nil {
				t.Fatalf("AddBlock() = %v", err)
			}
			if !tt.ok && ftag.Get(err) != TagInvalid {
				t.Fatalf("AddBlock() tag = %v, want %v", ftag.Get(err), TagInvalid)
			}
		})
	}

	if got := s.Snapshot().ArrangementLength(); got != MaxBars {
		t.Errorf("ArrangementLength() = %d, want %d", got, MaxBars)
	}
	if err := s.AddBlock(PatternBlock{TrackID: kick, StartBar: MaxBars - 2, LengthBars: 2}); !errors.Is(err, ErrBlockOverlap) {
		t.Errorf("overlap with the last block = %v, want ErrBlockOverlap", err)
	}
	if err := s.ResizeBlock(kick, MaxBars-1, math.MaxInt); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ResizeBlock() = %v, want ErrOutOfRange", err)
	}
}
