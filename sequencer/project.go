package sequencer

import (
	"math"
	"slices"
)

// Project limits and defaults
const (
	MinBPM                 = 40
	MaxBPM                 = 300
	DefaultBPM             = 120
	DefaultStepsPerPattern = 16
	MaxStepsPerPattern     = 64
	DefaultGridDivision    = 4 // steps per beat
	MaxGridDivision        = 16
	MaxBars                = 1024 // arrangement length limit
	MinVolumeDB            = -60.0
	MaxVolumeDB            = 6.0
	MaxVelocity            = 127
	DefaultVelocity        = 100
)

type (
	// TrackID identifies a track. IDs come from Project.NextTrackID and are
	// never reused within a project, even after the track is removed.
	TrackID int

	// NoteID identifies a note across all tracks of a project.
	NoteID int

	// TrackKind says whether a track plays a step pattern or a note list.
	TrackKind string

	// Project is the root of the document edited by a Session.
	Project struct {
		Name            string         `yaml:"name" json:"name"`
		BPM             int            `yaml:"bpm" json:"bpm"`
		StepsPerPattern int            `yaml:"stepsPerPattern" json:"stepsPerPattern"`
		GridDivision    int            `yaml:"gridDivision" json:"gridDivision"`
		MasterVolume    float64        `yaml:"masterVolume" json:"masterVolume"`
		Tracks          []Track        `yaml:"tracks" json:"tracks"`
		Arrangement     []PatternBlock `yaml:"arrangement,omitempty" json:"arrangement,omitempty"`
		NextTrackID     TrackID        `yaml:"nextTrackId" json:"nextTrackId"`
		NextNoteID      NoteID         `yaml:"nextNoteId" json:"nextNoteId"`
	}

	// Track is one lane of the project. A steps track plays the Steps of its
	// active pattern using Note as its sound; a notes track plays the Notes.
	Track struct {
		ID       TrackID        `yaml:"id" json:"id"`
		Name     string         `yaml:"name" json:"name"`
		Kind     TrackKind      `yaml:"kind" json:"kind"`
		Note     Pitch          `yaml:"note,omitempty" json:"note,omitempty"`
		Patterns []Pattern      `yaml:"patterns" json:"patterns"`
		Active   int            `yaml:"active" json:"active"`
		Volume   float64        `yaml:"volume" json:"volume"` // dB
		Pan      float64        `yaml:"pan" json:"pan"`
		Mute     bool           `yaml:"mute,omitempty" json:"mute,omitempty"`
		Solo     bool           `yaml:"solo,omitempty" json:"solo,omitempty"`
		Effects  EffectSettings `yaml:"effects" json:"effects"`
	}

	// Pattern is one stored variant of a track's content. Steps is sized to
	// the project's StepsPerPattern for steps tracks and empty otherwise.
	Pattern struct {
		Steps []bool `yaml:"steps,flow,omitempty" json:"steps,omitempty"`
		Notes []Note `yaml:"notes,omitempty" json:"notes,omitempty"`
	}

	// Note is a piano roll note. (Pitch, StartStep) is unique within a pattern.
	Note struct {
		ID            NoteID `yaml:"id" json:"id"`
		Pitch         Pitch  `yaml:"pitch" json:"pitch"`
		StartStep     int    `yaml:"start" json:"start"`
		DurationSteps int    `yaml:"duration" json:"duration"`
		Velocity      uint8  `yaml:"velocity" json:"velocity"`
	}
)

const (
	KindSteps TrackKind = "steps"
	KindNotes TrackKind = "notes"
)

// gmDrums are the default sounds handed out to new steps tracks, in order.
var gmDrums = []Pitch{
	36, // Kick
	38, // Snare
	42, // Closed HH
	46, // Open HH
	39, // Clap
	41, // Low Tom
	45, // High Tom
	49, // Crash
	51, // Ride
	37, // Rimshot
	56, // Cowbell
	75, // Clave
}

// NewProject creates an empty project with default timing.
func NewProject(name string) *Project {
	return &Project{
		Name:            name,
		BPM:             DefaultBPM,
		StepsPerPattern: DefaultStepsPerPattern,
		GridDivision:    DefaultGridDivision,
		MasterVolume:    1,
		NextTrackID:     1,
		NextNoteID:      1,
	}
}

// Copy returns a deep copy sharing no mutable memory with p.
func (p *Project) Copy() *Project {
	if p == nil {
		return nil
	}
	ret := *p
	if p.Tracks != nil {
		ret.Tracks = make([]Track, len(p.Tracks))
		for i := range p.Tracks {
			ret.Tracks[i] = p.Tracks[i].Copy()
		}
	}
	ret.Arrangement = slices.Clone(p.Arrangement)
	return &ret
}

// Copy returns a deep copy of the track.
func (t Track) Copy() Track {
	ret := t
	if t.Patterns == nil {
		return ret
	}
	ret.Patterns = make([]Pattern, len(t.Patterns))
	for i, pat := range t.Patterns {
		ret.Patterns[i] = Pattern{
			Steps: slices.Clone(pat.Steps),
			Notes: slices.Clone(pat.Notes),
		}
	}
	return ret
}

// Track returns the track with the given id, or nil.
func (p *Project) Track(id TrackID) *Track {
	if i := p.TrackIndex(id); i >= 0 {
		return &p.Tracks[i]
	}
	return nil
}

// TrackIndex returns the position of the track in the track list, or -1.
func (p *Project) TrackIndex(id TrackID) int {
	for i := range p.Tracks {
		if p.Tracks[i].ID == id {
			return i
		}
	}
	return -1
}

// ActivePattern returns the pattern edited and looped for this track.
func (t *Track) ActivePattern() *Pattern {
	return t.PatternAt(t.Active)
}

// PatternAt returns a stored variant, or nil if index is out of range.
func (t *Track) PatternAt(index int) *Pattern {
	if index < 0 || index >= len(t.Patterns) {
		return nil
	}
	return &t.Patterns[index]
}

// SoloActive reports whether any track is soloed.
func (p *Project) SoloActive() bool {
	return slices.ContainsFunc(p.Tracks, func(t Track) bool { return t.Solo })
}

// Audible reports whether a track is heard. When any track is soloed, every
// non-soloed track is silent regardless of its own mute flag.
func (p *Project) Audible(id TrackID) bool {
	t := p.Track(id)
	if t == nil {
		return false
	}
	return p.audible(t, p.SoloActive())
}

func (p *Project) audible(t *Track, soloActive bool) bool {
	if soloActive {
		return t.Solo
	}
	return !t.Mute
}

// Gain returns the linear amplitude of a track, master volume included.
func (p *Project) Gain(t *Track) float64 {
	return dbToGain(t.Volume) * p.MasterVolume
}

func dbToGain(db float64) float64 {
	if db <= MinVolumeDB {
		return 0
	}
	return math.Pow(10, db/20)
}

func clamp[T int | float64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return clamp(v, lo, hi)
}
