package render

import (
	"math"
	"time"

	"beatseq/sequencer"
)

// Voice turns one trigger into mono samples at unit gain. Track gain and pan
// are applied by the mixer.
type Voice interface {
	Render(t sequencer.Trigger, sampleRate int) []float32
}

// VoiceFunc adapts a function to a Voice.
type VoiceFunc func(t sequencer.Trigger, sampleRate int) []float32

func (f VoiceFunc) Render(t sequencer.Trigger, sampleRate int) []float32 { return f(t, sampleRate) }

// SineVoice is a minimal built-in instrument: notes are sine tones lasting
// the note length, steps are short pitched blips.
type SineVoice struct{}

const (
	blipLength  = 80 * time.Millisecond
	releaseTime = 10 * time.Millisecond
	voiceLevel  = 0.25
)

func (SineVoice) Render(t sequencer.Trigger, sampleRate int) []float32 {
	length := t.Length
	if !t.IsNote {
		length = blipLength
	}
	n := frameAt(length, sampleRate)
	if n <= 0 {
		return nil
	}
	release := min(frameAt(releaseTime, sampleRate), n)
	amp := voiceLevel * float64(t.Velocity) / sequencer.MaxVelocity
	w := 2 * math.Pi * t.Pitch.Frequency() / float64(sampleRate)

	out := make([]float32, n)
	for i := range out {
		env := 1.0
		if !t.IsNote {
			env = 1 - float64(i)/float64(n) // linear decay
		} else if i >= n-release {
			env = float64(n-i) / float64(release)
		}
		out[i] = float32(amp * env * math.Sin(w*float64(i)))
	}
	return out
}
