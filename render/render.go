// Package render plays a project's arrangement offline, faster than real
// time, and mixes the triggers into a stereo buffer.
package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"beatseq/debug"
	"beatseq/sequencer"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/viterin/vek/vek32"
)

const DefaultSampleRate = 44100

// ErrCanceled is returned when the context ends during a render. No partial
// result is returned with it.
var ErrCanceled = errors.New("render canceled")

type Options struct {
	SampleRate int   // DefaultSampleRate if 0
	Voice      Voice // SineVoice if nil
	// Tail is extra silence after the last bar for releases to ring out.
	Tail time.Duration
	// Loops > 0 renders the active patterns that many times instead of the
	// arrangement.
	Loops int
	// Progress is called after each bar.
	Progress func(bar, bars int)
}

// Result of a render. Frames holds interleaved stereo samples (L, R, L, R...).
type Result struct {
	Triggers   []sequencer.Trigger
	Frames     []float32
	SampleRate int
	Length     time.Duration
	Bars       int
}

// Samples returns the number of stereo sample frames.
func (r *Result) Samples() int {
	return len(r.Frames) / 2
}

// Render walks the timeline bar by bar, collecting the same triggers the
// transport would emit and mixing the voice's output for each. An empty
// arrangement or a project without tracks yields an empty result. The
// context is checked at every bar boundary.
func Render(ctx context.Context, p *sequencer.Project, opt Options) (*Result, error) {
	if opt.SampleRate <= 0 {
		opt.SampleRate = DefaultSampleRate
	}
	if opt.Voice == nil {
		opt.Voice = SineVoice{}
	}

	bars := p.ArrangementLength()
	triggersAt := p.ArrangementTriggers
	if opt.Loops > 0 {
		bars = opt.Loops
		triggersAt = func(_, step int) []sequencer.Trigger { return p.LoopTriggers(step) }
	}
	res := &Result{SampleRate: opt.SampleRate}
	if bars == 0 || len(p.Tracks) == 0 || p.StepsPerPattern <= 0 {
		return res, nil
	}

	stepLen := p.StepDuration()
	res.Bars = bars
	res.Length = time.Duration(bars*p.StepsPerPattern) * stepLen
	m := newMixer(frameAt(res.Length+opt.Tail, opt.SampleRate))

	for bar := 0; bar < bars; bar++ {
		if err := ctx.Err(); err != nil {
			debug.Log("render", "canceled at bar %d of %d", bar, bars)
			return nil, fault.Wrap(fmt.Errorf("%w: %w", ErrCanceled, err),
				ftag.With(sequencer.TagCancelled),
				fmsg.WithDesc(fmt.Sprintf("canceled at bar %d", bar), "Render canceled"))
		}
		for step := 0; step < p.StepsPerPattern; step++ {
			at := time.Duration(bar*p.StepsPerPattern+step) * stepLen
			for _, trig := range triggersAt(bar, step) {
				trig.Bar = bar
				trig.Time = at
				res.Triggers = append(res.Triggers, trig)
				m.add(frameAt(at, opt.SampleRate), opt.Voice.Render(trig, opt.SampleRate), trig.Gain, trig.Pan)
			}
		}
		if opt.Progress != nil {
			opt.Progress(bar+1, bars)
		}
	}

	res.Frames = m.interleave()
	debug.Log("render", "%d bars, %d triggers, %v", bars, len(res.Triggers), res.Length)
	return res, nil
}

func frameAt(d time.Duration, sampleRate int) int {
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// mixer sums mono voice buffers into planar left/right channels.
type mixer struct {
	left, right []float32
	tmp         []float32
}

func newMixer(frames int) *mixer {
	return &mixer{
		left:  make([]float32, frames),
		right: make([]float32, frames),
	}
}

// add mixes buf starting at frame with constant power panning.
func (m *mixer) add(frame int, buf []float32, gain, pan float64) {
	if frame >= len(m.left) || gain <= 0 || len(buf) == 0 {
		return
	}
	n := min(len(buf), len(m.left)-frame)
	if cap(m.tmp) < n {
		m.tmp = make([]float32, n)
	}
	tmp := m.tmp[:n]

	angle := (pan + 1) * math.Pi / 4
	vek32.MulNumber_Into(tmp, buf[:n], float32(gain*math.Cos(angle)))
	vek32.Add_Inplace(m.left[frame:frame+n], tmp)
	vek32.MulNumber_Into(tmp, buf[:n], float32(gain*math.Sin(angle)))
	vek32.Add_Inplace(m.right[frame:frame+n], tmp)
}

func (m *mixer) interleave() []float32 {
	out := make([]float32, 2*len(m.left))
	for i := range m.left {
		out[2*i] = m.left[i]
		out[2*i+1] = m.right[i]
	}
	return out
}
