package midi

import (
	"math"
	"sync"
	"time"

	"beatseq/debug"
	"beatseq/sequencer"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Sender writes one message to a port (gomidi.SendTo returns one).
type Sender func(gomidi.Message) error

const (
	ccPan          = 10
	ccAllNotesOff  = 123
	minGate        = 10 * time.Millisecond
	drumGate       = 50 * time.Millisecond
	gateProportion = 0.9
)

// Output is the MIDI audio backend: it implements sequencer.TriggerSink by
// sending a note on for every trigger and scheduling the matching note off.
type Output struct {
	mu       sync.Mutex
	send     Sender
	voices   *VoiceTable
	kit      DrumKit
	after    func(time.Duration, func())
	sounding map[[2]uint8]int // channel, note -> overlapping note ons
	pans     map[uint8]uint8
	closed   bool
	closer   func() error
}

type OutputOption func(*Output)

// WithKit remaps drum tracks to a named drum machine kit.
func WithKit(name string) OutputOption {
	return func(o *Output) { o.kit = Kit(name) }
}

// WithAfterFunc replaces time.AfterFunc for note off scheduling.
func WithAfterFunc(after func(time.Duration, func())) OutputOption {
	return func(o *Output) { o.after = after }
}

// NewOutput creates an output sending through send. A nil voice table gets
// channels from 0.
func NewOutput(send Sender, voices *VoiceTable, opts ...OutputOption) *Output {
	if voices == nil {
		voices = NewVoiceTable(0)
	}
	o := &Output{
		send:     send,
		voices:   voices,
		kit:      Kit(DefaultKit),
		after:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		sounding: make(map[[2]uint8]int),
		pans:     make(map[uint8]uint8),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Voices exposes the output's track to channel table.
func (o *Output) Voices() *VoiceTable {
	return o.voices
}

// Trigger plays t. Track gain scales the velocity; silent triggers are
// dropped.
func (o *Output) Trigger(t sequencer.Trigger) {
	vel := int(math.Round(float64(t.Velocity) * t.Gain))
	if vel <= 0 {
		return
	}
	vel = min(vel, sequencer.MaxVelocity)

	voice := o.voices.Acquire(t.TrackID, !t.IsNote)
	note := uint8(t.Pitch)
	gate := max(time.Duration(float64(t.Length)*gateProportion), minGate)
	if voice.Drum {
		note = o.kit.Map(note)
		gate = drumGate
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if !voice.Drum {
		pan := uint8(math.Round((t.Pan + 1) * 63.5))
		if prev, ok := o.pans[voice.Channel]; !ok || prev != pan {
			o.pans[voice.Channel] = pan
			o.write(gomidi.ControlChange(voice.Channel, ccPan, pan))
		}
	}
	o.write(gomidi.NoteOn(voice.Channel, note, uint8(vel)))
	o.sounding[[2]uint8{voice.Channel, note}]++
	o.mu.Unlock()

	ch := voice.Channel
	o.after(gate, func() { o.noteOff(ch, note) })
}

func (o *Output) noteOff(ch, note uint8) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := [2]uint8{ch, note}
	if o.sounding[key] == 0 {
		return
	}
	o.sounding[key]--
	if o.sounding[key] == 0 {
		delete(o.sounding, key)
	}
	o.write(gomidi.NoteOff(ch, note))
}

// Panic silences every sounding note and sends all notes off on every bound
// channel. Pending note offs become no-ops.
func (o *Output) Panic() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.silence()
}

func (o *Output) silence() {
	for key := range o.sounding {
		o.write(gomidi.NoteOff(key[0], key[1]))
	}
	clear(o.sounding)
	for _, ch := range o.voices.Channels() {
		o.write(gomidi.ControlChange(ch, ccAllNotesOff, 0))
	}
}

// Close silences the output and closes the port it was opened on.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.silence()
	o.closed = true
	if o.closer != nil {
		return o.closer()
	}
	return nil
}

func (o *Output) write(msg gomidi.Message) {
	if err := o.send(msg); err != nil {
		debug.LogEvery(50, "midi", "send %v: %v", msg, err)
	}
}
