package sequencer

import (
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/Southclaws/fault/ftag"
)

func sampleProject(t *testing.T) *Project {
	t.Helper()
	s, _ := testSession(t)
	kick := mustAddTrack(t, s, "Kick", KindSteps)
	lead := mustAddTrack(t, s, "Lead", KindNotes)
	s.ToggleStep(kick, 0)
	s.ToggleStep(kick, 8)
	s.SetTrackEffect(kick, Reverb, 0.3)
	s.SetTrackPan(lead, -0.5)
	s.AddNote(lead, 61, 0, 2, 100)
	s.AddNote(lead, 65, 4, 1, 80)
	s.AddPattern(lead)
	s.AddBlock(PatternBlock{TrackID: kick, StartBar: 0, LengthBars: 4, Category: "intro"})
	s.AddBlock(PatternBlock{TrackID: lead, StartBar: 2, LengthBars: 2, Pattern: 1, Category: "verse"})
	return s.Project()
}

func TestProjectRoundTrip(t *testing.T) {
	p := sampleProject(t)
	blob, err := SerializeProject(p)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(blob), "format: beatseq.project") {
		t.Errorf("document header missing:\n%s", blob)
	}
	if !strings.Contains(string(blob), "C#4") {
		t.Errorf("pitch not written as a note name:\n%s", blob)
	}
	got, err := LoadProject(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, p)
	}
}

func TestLoadProjectMalformed(t *testing.T) {
	valid, err := SerializeProject(sampleProject(t))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		blob string
	}{
		{"garbage", "{{{"},
		{"empty", ""},
		{"wrong format", strings.Replace(string(valid), "beatseq.project", "other", 1)},
		{"future version", strings.Replace(string(valid), "version: 1", "version: 9", 1)},
		{"unknown field", strings.Replace(string(valid), "  name: test", "  name: test\n  colour: red", 1)},
		{"bpm out of range", strings.Replace(string(valid), "bpm: 120", "bpm: 900", 1)},
		{"bad pitch", strings.Replace(string(valid), "C#4", "H9", 1)},
		{"no project", "format: beatseq.project\nversion: 1\n"},
		{"nan master volume", strings.Replace(string(valid), "masterVolume: 1", "masterVolume: .nan", 1)},
		{"nan volume", strings.Replace(string(valid), "volume: 0", "volume: .nan", 1)},
		{"nan pan", strings.Replace(string(valid), "pan: -0.5", "pan: .nan", 1)},
		{"block past last bar", strings.Replace(string(valid), "length: 4", "length: 9223372036854775807", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := LoadProject([]byte(tt.blob))
			if p != nil {
				t.Error("LoadProject() returned a project for a bad blob")
			}
			if !errors.Is(err, ErrMalformedProject) {
				t.Errorf("error = %v, want ErrMalformedProject", err)
			}
			if ftag.Get(err) != TagMalformed {
				t.Errorf("tag = %v, want %v", ftag.Get(err), TagMalformed)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Project)
	}{
		{"duplicate note", func(p *Project) {
			pat := &p.Tracks[1].Patterns[0]
			n := pat.Notes[0]
			n.ID = p.NextNoteID
			p.NextNoteID++
			pat.Notes = append(pat.Notes, n)
		}},
		{"overlapping blocks", func(p *Project) {
			p.Arrangement = append(p.Arrangement, PatternBlock{TrackID: p.Tracks[0].ID, StartBar: 3, LengthBars: 1})
		}},
		{"short step pattern", func(p *Project) { p.Tracks[0].Patterns[0].Steps = p.Tracks[0].Patterns[0].Steps[:4] }},
		{"duplicate track id", func(p *Project) { p.Tracks[1].ID = p.Tracks[0].ID }},
		{"track id from the future", func(p *Project) { p.Tracks[1].ID = p.NextTrackID }},
		{"volume", func(p *Project) { p.Tracks[0].Volume = 12 }},
		{"effect", func(p *Project) { p.Tracks[0].Effects.Delay = 1.5 }},
		{"block pattern", func(p *Project) { p.Arrangement[0].Pattern = 3 }},
		{"active pattern", func(p *Project) { p.Tracks[0].Active = 2 }},
		{"nan master volume", func(p *Project) { p.MasterVolume = math.NaN() }},
		{"nan pan", func(p *Project) { p.Tracks[1].Pan = math.NaN() }},
		{"nan effect", func(p *Project) { p.Tracks[0].Effects.Reverb = math.NaN() }},
		{"block start overflows", func(p *Project) {
			p.Arrangement[0].StartBar = math.MaxInt - 2
			p.Arrangement[0].LengthBars = 10
		}},
		{"block past last bar", func(p *Project) { p.Arrangement[1].LengthBars = MaxBars }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sampleProject(t)
			if err := p.Validate(); err != nil {
				t.Fatalf("sample invalid: %v", err)
			}
			tt.mutate(p)
			if err := p.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
