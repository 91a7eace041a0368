package sequencer

import (
	"fmt"
	"slices"
)

func trackOf(p *Project, id TrackID) (*Track, error) {
	t := p.Track(id)
	if t == nil {
		return nil, notFound(ErrUnknownTrack, fmt.Sprintf("track %d does not exist", id))
	}
	return t, nil
}

// newTrack builds a track with one empty pattern sized for p.
func newTrack(p *Project, name string, kind TrackKind) Track {
	t := Track{
		ID:       p.NextTrackID,
		Name:     name,
		Kind:     kind,
		Patterns: []Pattern{p.emptyPattern(kind)},
	}
	if kind == KindSteps {
		drums := 0
		for _, other := range p.Tracks {
			if other.Kind == KindSteps {
				drums++
			}
		}
		t.Note = gmDrums[drums%len(gmDrums)]
	}
	if t.Name == "" {
		t.Name = fmt.Sprintf("Track %d", t.ID)
	}
	return t
}

func (p *Project) emptyPattern(kind TrackKind) Pattern {
	if kind == KindSteps {
		return Pattern{Steps: make([]bool, p.StepsPerPattern)}
	}
	return Pattern{}
}

// AddTrack appends a track and returns its id.
func (s *Session) AddTrack(name string, kind TrackKind) (TrackID, error) {
	if kind != KindSteps && kind != KindNotes {
		return 0, invalid(ErrWrongTrackKind, fmt.Sprintf("unknown track kind %q", kind))
	}
	var id TrackID
	err := s.apply("Add track", func(p *Project) error {
		t := newTrack(p, name, kind)
		id = t.ID
		p.NextTrackID++
		p.Tracks = append(p.Tracks, t)
		return nil
	})
	return id, err
}

// RemoveTrack deletes a track and its arrangement blocks. A running transport
// stops hearing it at the next step.
func (s *Session) RemoveTrack(id TrackID) error {
	return s.apply("Remove track", func(p *Project) error {
		i := p.TrackIndex(id)
		if i < 0 {
			return notFound(ErrUnknownTrack, fmt.Sprintf("track %d does not exist", id))
		}
		p.Tracks = slices.Delete(p.Tracks, i, i+1)
		p.Arrangement = slices.DeleteFunc(p.Arrangement, func(b PatternBlock) bool {
			return b.TrackID == id
		})
		return nil
	})
}

func (s *Session) RenameTrack(id TrackID, name string) error {
	return s.apply("Rename track", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		if name == "" || name == t.Name {
			return errNoChange
		}
		t.Name = name
		return nil
	})
}

// SetTrackVolume sets the track level in dB, clamped to -60..+6.
func (s *Session) SetTrackVolume(id TrackID, db float64) error {
	return s.apply("Track volume", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		db = clampFloat(db, MinVolumeDB, MaxVolumeDB)
		if db == t.Volume {
			return errNoChange
		}
		t.Volume = db
		return nil
	})
}

// SetTrackPan sets the stereo position, clamped to -1..1.
func (s *Session) SetTrackPan(id TrackID, pan float64) error {
	return s.apply("Track pan", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		pan = clampFloat(pan, -1, 1)
		if pan == t.Pan {
			return errNoChange
		}
		t.Pan = pan
		return nil
	})
}

// SetTrackEffect sets one effect amount, clamped to 0..1.
func (s *Session) SetTrackEffect(id TrackID, kind EffectKind, amount float64) error {
	if !kind.Valid() {
		return invalid(ErrOutOfRange, fmt.Sprintf("unknown effect %d", int(kind)))
	}
	return s.apply(fmt.Sprintf("Track %s", kind), func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		before := t.Effects
		t.Effects.Set(kind, amount)
		if t.Effects == before {
			return errNoChange
		}
		return nil
	})
}

// TrackEdit is a set of track changes applied together. Nil fields are left
// alone.
type TrackEdit struct {
	Name   *string
	Volume *float64
	Pan    *float64
	Sound  *Pitch
}

// EditTrack applies every field of e as one command. If any field is
// rejected the track is left untouched and no history entry is made.
func (s *Session) EditTrack(id TrackID, e TrackEdit) error {
	return s.apply("Edit track", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		name, volume, pan, note := t.Name, t.Volume, t.Pan, t.Note
		if e.Sound != nil {
			if t.Kind != KindSteps {
				return invalid(ErrWrongTrackKind, "only steps tracks have a sound")
			}
			t.Note = min(*e.Sound, MaxPitch)
		}
		if e.Name != nil && *e.Name != "" {
			t.Name = *e.Name
		}
		if e.Volume != nil {
			t.Volume = clampFloat(*e.Volume, MinVolumeDB, MaxVolumeDB)
		}
		if e.Pan != nil {
			t.Pan = clampFloat(*e.Pan, -1, 1)
		}
		if t.Name == name && t.Volume == volume && t.Pan == pan && t.Note == note {
			return errNoChange
		}
		return nil
	})
}

// SetTrackSound sets the pitch a steps track triggers.
func (s *Session) SetTrackSound(id TrackID, pitch Pitch) error {
	return s.apply("Track sound", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		if t.Kind != KindSteps {
			return invalid(ErrWrongTrackKind, "only steps tracks have a sound")
		}
		t.Note = min(pitch, MaxPitch)
		return nil
	})
}

func (s *Session) ToggleMute(id TrackID) error {
	return s.apply("Toggle mute", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		t.Mute = !t.Mute
		return nil
	})
}

// ToggleSolo flips a track's solo flag. Effective audibility is derived from
// the solo flags of the published snapshot, so every track changes together.
func (s *Session) ToggleSolo(id TrackID) error {
	return s.apply("Toggle solo", func(p *Project) error {
		t, err := trackOf(p, id)
		if err != nil {
			return err
		}
		t.Solo = !t.Solo
		return nil
	})
}

// SetBPM clamps to 40..300. A playing transport picks it up at the next step.
func (s *Session) SetBPM(bpm int) error {
	return s.apply("Tempo", func(p *Project) error {
		bpm = clamp(bpm, MinBPM, MaxBPM)
		if bpm == p.BPM {
			return errNoChange
		}
		p.BPM = bpm
		return nil
	})
}

// SetMasterVolume sets the linear master gain, clamped to 0..1.
func (s *Session) SetMasterVolume(v float64) error {
	return s.apply("Master volume", func(p *Project) error {
		v = clampFloat(v, 0, 1)
		if v == p.MasterVolume {
			return errNoChange
		}
		p.MasterVolume = v
		return nil
	})
}
