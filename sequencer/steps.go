package sequencer

import (
	"fmt"
	"slices"
)

// MaxPatterns bounds the stored variants per track.
const MaxPatterns = 16

func stepsTrack(p *Project, id TrackID) (*Track, error) {
	t, err := trackOf(p, id)
	if err != nil {
		return nil, err
	}
	if t.Kind != KindSteps {
		return nil, invalid(ErrWrongTrackKind, fmt.Sprintf("track %d is not a steps track", id))
	}
	return t, nil
}

// ToggleStep flips one step of the active pattern. A step outside
// [0, StepsPerPattern) is ignored.
func (s *Session) ToggleStep(id TrackID, step int) error {
	return s.apply("Toggle step", func(p *Project) error {
		t, err := stepsTrack(p, id)
		if err != nil {
			return err
		}
		pat := t.ActivePattern()
		if pat == nil || step < 0 || step >= p.StepsPerPattern || step >= len(pat.Steps) {
			return errNoChange
		}
		pat.Steps[step] = !pat.Steps[step]
		return nil
	})
}

// SetStep sets one step of the active pattern. Out of range steps are ignored.
func (s *Session) SetStep(id TrackID, step int, on bool) error {
	return s.apply("Set step", func(p *Project) error {
		t, err := stepsTrack(p, id)
		if err != nil {
			return err
		}
		pat := t.ActivePattern()
		if pat == nil || step < 0 || step >= len(pat.Steps) || pat.Steps[step] == on {
			return errNoChange
		}
		pat.Steps[step] = on
		return nil
	})
}

// ClearPattern empties the active pattern of any track kind.
func (s *Session) ClearPattern(id TrackID) error {
	return s.apply("Clear pattern", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		pat := t.ActivePattern()
		if pat == nil {
			return errNoChange
		}
		*pat = p.emptyPattern(t.Kind)
		return nil
	})
}

// AddPattern stores a copy of the active pattern as a new variant, makes it
// active and returns its index.
func (s *Session) AddPattern(id TrackID) (int, error) {
	var index int
	err := s.apply("Add pattern", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		if len(t.Patterns) >= MaxPatterns {
			return invalid(ErrOutOfRange, fmt.Sprintf("track %d already has %d patterns", id, MaxPatterns))
		}
		next := p.emptyPattern(t.Kind)
		if cur := t.ActivePattern(); cur != nil {
			next.Steps = slices.Clone(cur.Steps)
			next.Notes = slices.Clone(cur.Notes)
			for i := range next.Notes {
				next.Notes[i].ID = p.NextNoteID
				p.NextNoteID++
			}
		}
		t.Patterns = append(t.Patterns, next)
		t.Active = len(t.Patterns) - 1
		index = t.Active
		return nil
	})
	return index, err
}

// SelectPattern makes a stored variant active.
func (s *Session) SelectPattern(id TrackID, index int) error {
	return s.apply("Select pattern", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(t.Patterns) {
			return invalid(ErrOutOfRange, fmt.Sprintf("track %d has no pattern %d", id, index))
		}
		if index == t.Active {
			return errNoChange
		}
		t.Active = index
		return nil
	})
}
