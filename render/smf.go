package render

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"beatseq/sequencer"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const ticksPerQuarter = 480

// DrumChannel is the General MIDI percussion channel (10, zero based 9).
const DrumChannel = 9

type smfEvent struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// WriteMIDI writes the triggers of a render as a format 1 Standard MIDI
// File: a tempo track, then one track per project track. Steps tracks play
// on the drum channel; notes tracks get channels in track order, skipping it.
func WriteMIDI(w io.Writer, p *sequencer.Project, res *Result) error {
	grid := max(p.GridDivision, 1)
	ticksPerStep := uint32(ticksPerQuarter / grid)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var tempo smf.Track
	tempo.Add(0, smf.MetaTrackSequenceName(p.Name))
	tempo.Add(0, smf.MetaTempo(float64(p.BPM)))
	tempo.Add(0, smf.MetaMeter(4, 4))
	tempo.Close(0)
	if err := s.Add(tempo); err != nil {
		return fmt.Errorf("add tempo track: %w", err)
	}

	channels := channelMap(p)
	for _, t := range p.Tracks {
		ch := channels[t.ID]
		var events []smfEvent
		for _, trig := range res.Triggers {
			if trig.TrackID != t.ID {
				continue
			}
			start := uint32(trig.Bar*p.StepsPerPattern+trig.Step) * ticksPerStep
			length := uint32(max(trig.Duration, 1)) * ticksPerStep
			if !trig.IsNote {
				length = ticksPerStep / 2
			}
			events = append(events,
				smfEvent{tick: start, msg: midi.NoteOn(ch, uint8(trig.Pitch), max(trig.Velocity, 1))},
				smfEvent{tick: start + length, off: true, msg: midi.NoteOff(ch, uint8(trig.Pitch))},
			)
		}
		slices.SortStableFunc(events, func(a, b smfEvent) int {
			if c := cmp.Compare(a.tick, b.tick); c != 0 {
				return c
			}
			// note offs first so a retrigger at the same tick is not cut
			if a.off != b.off {
				if a.off {
					return -1
				}
				return 1
			}
			return 0
		})

		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(t.Name))
		var last uint32
		for _, ev := range events {
			tr.Add(ev.tick-last, ev.msg)
			last = ev.tick
		}
		tr.Close(0)
		if err := s.Add(tr); err != nil {
			return fmt.Errorf("add track %q: %w", t.Name, err)
		}
	}

	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("write midi file: %w", err)
	}
	return nil
}

// channelMap gives every steps track the drum channel and every notes track
// its own melodic channel, wrapping after fifteen.
func channelMap(p *sequencer.Project) map[sequencer.TrackID]uint8 {
	out := make(map[sequencer.TrackID]uint8, len(p.Tracks))
	next := uint8(0)
	for _, t := range p.Tracks {
		if t.Kind == sequencer.KindSteps {
			out[t.ID] = DrumChannel
			continue
		}
		out[t.ID] = next
		next = (next + 1) % 16
		if next == DrumChannel {
			next++
		}
	}
	return out
}
