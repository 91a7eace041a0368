package sequencer

import (
	"slices"
	"time"
)

// Trigger tells an audio backend to sound a track now. Steps tracks fire with
// the track's Note and DefaultVelocity; notes tracks fire once per note.
type Trigger struct {
	TrackID  TrackID
	Bar      int
	Step     int
	Pitch    Pitch
	IsNote   bool
	Velocity uint8
	Duration int           // in steps
	Length   time.Duration // Duration at the tempo of the run
	Time     time.Duration // offset from the start of the run
	Gain     float64       // linear, master volume applied
	Pan      float64
	Effects  EffectSettings
}

// TriggerSink receives triggers from the transport or a render.
type TriggerSink interface {
	Trigger(Trigger)
}

// SinkFunc adapts a function to a TriggerSink.
type SinkFunc func(Trigger)

func (f SinkFunc) Trigger(t Trigger) { f(t) }

// StepDuration returns the length of one step: 60s / bpm / steps per beat.
func StepDuration(bpm, gridDivision int) time.Duration {
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	if gridDivision <= 0 {
		gridDivision = DefaultGridDivision
	}
	return time.Minute / time.Duration(bpm) / time.Duration(gridDivision)
}

// StepDuration returns the step length at the project's tempo.
func (p *Project) StepDuration() time.Duration {
	return StepDuration(p.BPM, p.GridDivision)
}

// LoopTriggers returns the triggers of each track's active pattern at step.
func (p *Project) LoopTriggers(step int) []Trigger {
	return p.collect(0, step, func(t *Track) *Pattern { return t.ActivePattern() })
}

// ArrangementTriggers returns the triggers at step of the given bar. A track
// plays only where one of its blocks covers the bar, using the block's
// pattern variant.
func (p *Project) ArrangementTriggers(bar, step int) []Trigger {
	return p.collect(bar, step, func(t *Track) *Pattern {
		b := p.BlockAt(t.ID, bar)
		if b == nil {
			return nil
		}
		return t.PatternAt(b.Pattern)
	})
}

// collect walks tracks in list order. Within a track, notes starting on the
// same step come out in ascending pitch order.
func (p *Project) collect(bar, step int, pick func(*Track) *Pattern) []Trigger {
	if step < 0 || step >= p.StepsPerPattern {
		return nil
	}
	solo := p.SoloActive()
	stepLen := p.StepDuration()

	var out []Trigger
	for i := range p.Tracks {
		t := &p.Tracks[i]
		if !p.audible(t, solo) {
			continue
		}
		pat := pick(t)
		if pat == nil {
			continue
		}
		base := Trigger{
			TrackID: t.ID,
			Bar:     bar,
			Step:    step,
			Gain:    p.Gain(t),
			Pan:     t.Pan,
			Effects: t.Effects,
		}

		switch t.Kind {
		case KindSteps:
			if step < len(pat.Steps) && pat.Steps[step] {
				trig := base
				trig.Pitch = t.Note
				trig.Velocity = DefaultVelocity
				trig.Duration = 1
				trig.Length = stepLen
				out = append(out, trig)
			}
		case KindNotes:
			start := len(out)
			for _, n := range pat.Notes {
				if n.StartStep != step {
					continue
				}
				trig := base
				trig.Pitch = n.Pitch
				trig.IsNote = true
				trig.Velocity = n.Velocity
				trig.Duration = n.DurationSteps
				trig.Length = time.Duration(n.DurationSteps) * stepLen
				out = append(out, trig)
			}
			slices.SortStableFunc(out[start:], func(a, b Trigger) int {
				return int(a.Pitch) - int(b.Pitch)
			})
		}
	}
	return out
}
