package sequencer

import (
	"fmt"
	"slices"
)

func notesPattern(p *Project, id TrackID) (*Pattern, error) {
	t, err := trackOf(p, id)
	if err != nil {
		return nil, err
	}
	if t.Kind != KindNotes {
		return nil, invalid(ErrWrongTrackKind, fmt.Sprintf("track %d is not a notes track", id))
	}
	pat := t.ActivePattern()
	if pat == nil {
		t.Patterns = []Pattern{{}}
		t.Active = 0
		pat = &t.Patterns[0]
	}
	return pat, nil
}

func noteIndex(pat *Pattern, id NoteID) int {
	return slices.IndexFunc(pat.Notes, func(n Note) bool { return n.ID == id })
}

// occupied reports whether another note already sits at (pitch, start).
func occupied(pat *Pattern, pitch Pitch, start int, except NoteID) bool {
	return slices.ContainsFunc(pat.Notes, func(n Note) bool {
		return n.ID != except && n.Pitch == pitch && n.StartStep == start
	})
}

func checkStart(p *Project, start int) error {
	if start < 0 || start >= p.StepsPerPattern {
		return invalid(ErrOutOfRange, fmt.Sprintf("start step %d outside 0..%d", start, p.StepsPerPattern-1))
	}
	return nil
}

// AddNote inserts a note into the active pattern of a notes track. Duration
// is clamped to at least one step and velocity to 0..127. A note already at
// the same pitch and start step rejects the edit.
func (s *Session) AddNote(id TrackID, pitch Pitch, start, duration int, velocity int) (NoteID, error) {
	var noteID NoteID
	err := s.apply("Add note", func(p *Project) error {
		pat, err := notesPattern(p, id)
		if err != nil {
			return err
		}
		if err := checkStart(p, start); err != nil {
			return err
		}
		pitch = min(pitch, MaxPitch)
		if occupied(pat, pitch, start, 0) {
			return conflict(ErrNoteExists, fmt.Sprintf("%s already starts at step %d", pitch, start))
		}
		noteID = p.NextNoteID
		p.NextNoteID++
		pat.Notes = append(pat.Notes, Note{
			ID:            noteID,
			Pitch:         pitch,
			StartStep:     start,
			DurationSteps: clamp(duration, 1, p.StepsPerPattern),
			Velocity:      uint8(clamp(velocity, 0, MaxVelocity)),
		})
		return nil
	})
	return noteID, err
}

// MoveNote changes a note's pitch and start step.
func (s *Session) MoveNote(id TrackID, note NoteID, pitch Pitch, start int) error {
	return s.apply("Move note", func(p *Project) error {
		pat, err := notesPattern(p, id)
		if err != nil {
			return err
		}
		i := noteIndex(pat, note)
		if i < 0 {
			return notFound(ErrNoteNotFound, fmt.Sprintf("note %d not on track %d", note, id))
		}
		if err := checkStart(p, start); err != nil {
			return err
		}
		pitch = min(pitch, MaxPitch)
		n := &pat.Notes[i]
		if n.Pitch == pitch && n.StartStep == start {
			return errNoChange
		}
		if occupied(pat, pitch, start, note) {
			return conflict(ErrNoteExists, fmt.Sprintf("%s already starts at step %d", pitch, start))
		}
		n.Pitch = pitch
		n.StartStep = start
		return nil
	})
}

// ResizeNote sets a note's length, clamped to 1..StepsPerPattern.
func (s *Session) ResizeNote(id TrackID, note NoteID, duration int) error {
	return s.apply("Resize note", func(p *Project) error {
		pat, err := notesPattern(p, id)
		if err != nil {
			return err
		}
		i := noteIndex(pat, note)
		if i < 0 {
			return notFound(ErrNoteNotFound, fmt.Sprintf("note %d not on track %d", note, id))
		}
		duration = clamp(duration, 1, p.StepsPerPattern)
		if pat.Notes[i].DurationSteps == duration {
			return errNoChange
		}
		pat.Notes[i].DurationSteps = duration
		return nil
	})
}

// SetNoteVelocity sets a note's velocity, clamped to 0..127.
func (s *Session) SetNoteVelocity(id TrackID, note NoteID, velocity int) error {
	return s.apply("Note velocity", func(p *Project) error {
		pat, err := notesPattern(p, id)
		if err != nil {
			return err
		}
		i := noteIndex(pat, note)
		if i < 0 {
			return notFound(ErrNoteNotFound, fmt.Sprintf("note %d not on track %d", note, id))
		}
		v := uint8(clamp(velocity, 0, MaxVelocity))
		if pat.Notes[i].Velocity == v {
			return errNoChange
		}
		pat.Notes[i].Velocity = v
		return nil
	})
}

func (s *Session) RemoveNote(id TrackID, note NoteID) error {
	return s.apply("Remove note", func(p *Project) error {
		pat, err := notesPattern(p, id)
		if err != nil {
			return err
		}
		i := noteIndex(pat, note)
		if i < 0 {
			return notFound(ErrNoteNotFound, fmt.Sprintf("note %d not on track %d", note, id))
		}
		pat.Notes = slices.Delete(pat.Notes, i, i+1)
		return nil
	})
}

// RecordNote captures a played note at the transport's current step. It only
// records while the transport is playing with recording armed, and reports
// whether anything was written. Steps tracks get their step set; notes tracks
// get a one step note. A note already at that pitch and step is kept.
func (s *Session) RecordNote(tr *Transport, id TrackID, pitch Pitch, velocity int) (bool, error) {
	if tr == nil || !tr.Playing() || !tr.Recording() {
		return false, nil
	}
	step := tr.Position()

	var recorded bool
	err := s.apply("Record", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		if step < 0 || step >= p.StepsPerPattern {
			return errNoChange
		}
		pat := t.ActivePattern()
		if pat == nil {
			return errNoChange
		}
		switch t.Kind {
		case KindSteps:
			if step >= len(pat.Steps) || pat.Steps[step] {
				return errNoChange
			}
			pat.Steps[step] = true
		case KindNotes:
			pitch = min(pitch, MaxPitch)
			if occupied(pat, pitch, step, 0) {
				return errNoChange
			}
			pat.Notes = append(pat.Notes, Note{
				ID:            p.NextNoteID,
				Pitch:         pitch,
				StartStep:     step,
				DurationSteps: 1,
				Velocity:      uint8(clamp(velocity, 0, MaxVelocity)),
			})
			p.NextNoteID++
		}
		recorded = true
		return nil
	})
	return recorded, err
}
