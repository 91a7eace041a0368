package sequencer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"
)

const (
	DocumentFormat  = "beatseq.project"
	DocumentVersion = 1
)

// document is the persisted envelope around a project.
type document struct {
	Format  string   `yaml:"format"`
	Version int      `yaml:"version"`
	Project *Project `yaml:"project"`
}

// SerializeProject encodes p as a versioned YAML document.
func SerializeProject(p *Project) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document{Format: DocumentFormat, Version: DocumentVersion, Project: p}); err != nil {
		return nil, fault.Wrap(err, fmsg.With("encode project"))
	}
	if err := enc.Close(); err != nil {
		return nil, fault.Wrap(err, fmsg.With("encode project"))
	}
	return buf.Bytes(), nil
}

// LoadProject decodes and validates a document written by SerializeProject.
// Any problem, unknown fields included, fails the whole load: a partially
// populated project is never returned.
func LoadProject(blob []byte) (*Project, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed(err)
	}
	if doc.Format != DocumentFormat {
		return nil, malformed(fmt.Errorf("format %q, want %q", doc.Format, DocumentFormat))
	}
	if doc.Version < 1 || doc.Version > DocumentVersion {
		return nil, malformed(fmt.Errorf("unsupported document version %d", doc.Version))
	}
	if doc.Project == nil {
		return nil, malformed(errors.New("document has no project"))
	}
	if err := doc.Project.Validate(); err != nil {
		return nil, malformed(err)
	}
	return doc.Project, nil
}

func malformed(cause error) error {
	return fault.Wrap(fmt.Errorf("%w: %w", ErrMalformedProject, cause),
		ftag.With(TagMalformed),
		fmsg.WithDesc("load project", "The project file is damaged and was not loaded"))
}

// Validate checks every invariant of the data model.
func (p *Project) Validate() error {
	if p.BPM < MinBPM || p.BPM > MaxBPM {
		return fmt.Errorf("bpm %d outside %d..%d", p.BPM, MinBPM, MaxBPM)
	}
	if p.StepsPerPattern < 1 || p.StepsPerPattern > MaxStepsPerPattern {
		return fmt.Errorf("stepsPerPattern %d outside 1..%d", p.StepsPerPattern, MaxStepsPerPattern)
	}
	if p.GridDivision < 1 || p.GridDivision > MaxGridDivision {
		return fmt.Errorf("gridDivision %d outside 1..%d", p.GridDivision, MaxGridDivision)
	}
	if !inRange(p.MasterVolume, 0, 1) {
		return fmt.Errorf("masterVolume %v outside 0..1", p.MasterVolume)
	}

	seen := make(map[TrackID]bool, len(p.Tracks))
	noteIDs := make(map[NoteID]bool)
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if t.ID < 1 || t.ID >= p.NextTrackID {
			return fmt.Errorf("track id %d outside 1..%d", t.ID, p.NextTrackID-1)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate track id %d", t.ID)
		}
		seen[t.ID] = true
		if err := p.validateTrack(t, noteIDs); err != nil {
			return fmt.Errorf("track %d: %w", t.ID, err)
		}
	}

	for i, b := range p.Arrangement {
		t := p.Track(b.TrackID)
		if t == nil {
			return fmt.Errorf("block %d: unknown track %d", i, b.TrackID)
		}
		if !b.inBounds() {
			return fmt.Errorf("block %d: bars %d+%d outside 0..%d", i, b.StartBar, b.LengthBars, MaxBars)
		}
		if t.PatternAt(b.Pattern) == nil {
			return fmt.Errorf("block %d: track %d has no pattern %d", i, b.TrackID, b.Pattern)
		}
		for _, o := range p.Arrangement[:i] {
			if b.overlaps(o) {
				return fmt.Errorf("block %d: %w", i, ErrBlockOverlap)
			}
		}
	}
	return nil
}

// inRange is false for NaN.
func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func (p *Project) validateTrack(t *Track, noteIDs map[NoteID]bool) error {
	if t.Kind != KindSteps && t.Kind != KindNotes {
		return fmt.Errorf("unknown kind %q", t.Kind)
	}
	if !inRange(t.Volume, MinVolumeDB, MaxVolumeDB) {
		return fmt.Errorf("volume %v outside %v..%v", t.Volume, MinVolumeDB, MaxVolumeDB)
	}
	if !inRange(t.Pan, -1, 1) {
		return fmt.Errorf("pan %v outside -1..1", t.Pan)
	}
	for k := EffectKind(0); k < numEffects; k++ {
		if v := t.Effects.Get(k); !inRange(v, 0, 1) {
			return fmt.Errorf("%s %v outside 0..1", k, v)
		}
	}
	if len(t.Patterns) == 0 || len(t.Patterns) > MaxPatterns {
		return fmt.Errorf("%d patterns, want 1..%d", len(t.Patterns), MaxPatterns)
	}
	if t.Active < 0 || t.Active >= len(t.Patterns) {
		return fmt.Errorf("active pattern %d out of range", t.Active)
	}

	for pi, pat := range t.Patterns {
		switch t.Kind {
		case KindSteps:
			if len(pat.Steps) != p.StepsPerPattern {
				return fmt.Errorf("pattern %d has %d steps, want %d", pi, len(pat.Steps), p.StepsPerPattern)
			}
			if len(pat.Notes) > 0 {
				return fmt.Errorf("pattern %d: steps track with notes", pi)
			}
		case KindNotes:
			if len(pat.Steps) > 0 {
				return fmt.Errorf("pattern %d: notes track with steps", pi)
			}
		}
		at := make(map[[2]int]bool, len(pat.Notes))
		for _, n := range pat.Notes {
			if n.ID < 1 || n.ID >= p.NextNoteID || noteIDs[n.ID] {
				return fmt.Errorf("pattern %d: bad note id %d", pi, n.ID)
			}
			noteIDs[n.ID] = true
			if n.StartStep < 0 || n.StartStep >= p.StepsPerPattern {
				return fmt.Errorf("note %d: start %d out of range", n.ID, n.StartStep)
			}
			if n.DurationSteps < 1 {
				return fmt.Errorf("note %d: duration %d", n.ID, n.DurationSteps)
			}
			if n.Velocity > MaxVelocity {
				return fmt.Errorf("note %d: velocity %d", n.ID, n.Velocity)
			}
			key := [2]int{int(n.Pitch), n.StartStep}
			if at[key] {
				return fmt.Errorf("pattern %d: %w (%s at step %d)", pi, ErrNoteExists, n.Pitch, n.StartStep)
			}
			at[key] = true
		}
	}
	return nil
}
