package sequencer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"beatseq/debug"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

// State of the transport. Recording is a separate flag.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// SnapshotSource hands the transport a frozen project. *Session implements it.
type SnapshotSource interface {
	Snapshot() *Project
}

// Transport loops the active patterns of a project in real time and sends
// triggers to a sink. It reads a fresh snapshot at every step boundary, so
// edits (tempo included) land on the next step and never mid-step.
type Transport struct {
	mu       sync.Mutex // guards start/stop
	source   SnapshotSource
	sink     TriggerSink
	clock    Clock
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	maintain bool

	position  atomic.Int64
	recording atomic.Bool

	// Notified (non-blocking) after every step
	UpdateChan chan struct{}
}

// NewTransport creates a stopped transport. A nil clock means RealClock.
func NewTransport(source SnapshotSource, sink TriggerSink, clock Clock) *Transport {
	if clock == nil {
		clock = RealClock()
	}
	return &Transport{
		source:     source,
		sink:       sink,
		clock:      clock,
		UpdateChan: make(chan struct{}, 1),
	}
}

// Start begins playback from the current position. Starting while playing
// does nothing.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == Playing {
		return nil
	}
	if t.source.Snapshot() == nil {
		return fault.New("transport has no project", fmsg.With("nothing to play"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.state = Playing
	from := int(t.position.Load())
	debug.Log("transport", "start at step %d", from)
	go t.loop(ctx, t.done, from)
	return nil
}

// Stop halts playback. When it returns no trigger of the stopped run can
// still fire. The position resets to 0 unless maintain position is set, in
// which case the next Start resumes at the following step.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Playing {
		return
	}
	t.cancel()
	<-t.done
	t.state = Stopped
	t.cancel = nil
	t.done = nil

	last := int(t.position.Load())
	if t.maintain {
		steps := DefaultStepsPerPattern
		if p := t.source.Snapshot(); p != nil && p.StepsPerPattern > 0 {
			steps = p.StepsPerPattern
		}
		t.position.Store(int64((last + 1) % steps))
	} else {
		t.position.Store(0)
	}
	debug.Log("transport", "stop after step %d", last)
	t.notify()
}

// Toggle starts a stopped transport or stops a playing one.
func (t *Transport) Toggle() error {
	if t.Playing() {
		t.Stop()
		return nil
	}
	return t.Start()
}

func (t *Transport) loop(ctx context.Context, done chan struct{}, step int) {
	defer close(done)

	begin := t.clock.Now()
	next := begin
	for {
		p := t.source.Snapshot()
		if p == nil || p.StepsPerPattern <= 0 {
			return
		}
		step %= p.StepsPerPattern
		t.position.Store(int64(step))

		elapsed := next.Sub(begin)
		for _, trig := range p.LoopTriggers(step) {
			if ctx.Err() != nil {
				return
			}
			trig.Time = elapsed
			t.sink.Trigger(trig)
		}
		debug.LogEvery(64, "transport", "step %d at %v", step, elapsed)
		t.notify()

		next = next.Add(p.StepDuration())
		if err := t.clock.Sleep(ctx, next.Sub(t.clock.Now())); err != nil {
			return
		}
		step++
	}
}

func (t *Transport) notify() {
	select {
	case t.UpdateChan <- struct{}{}:
	default:
	}
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) Playing() bool {
	return t.State() == Playing
}

// Position returns the step being played, or the step playback resumes from.
func (t *Transport) Position() int {
	return int(t.position.Load())
}

// SetRecording arms or disarms recording. It stays on until turned off.
func (t *Transport) SetRecording(on bool) {
	t.recording.Store(on)
	debug.Log("transport", "recording=%v", on)
}

func (t *Transport) Recording() bool {
	return t.recording.Load()
}

// SetMaintainPosition makes Stop behave like pause.
func (t *Transport) SetMaintainPosition(on bool) {
	t.mu.Lock()
	t.maintain = on
	t.mu.Unlock()
}

// StepDuration reports the step length at the current tempo.
func (t *Transport) StepDuration() time.Duration {
	if p := t.source.Snapshot(); p != nil {
		return p.StepDuration()
	}
	return StepDuration(DefaultBPM, DefaultGridDivision)
}
