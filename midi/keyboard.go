package midi

import (
	"context"
	"fmt"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// NoteEvent is a note played on a MIDI keyboard.
type NoteEvent struct {
	Note     uint8
	Velocity uint8
	Channel  uint8
}

// Keyboard listens to a MIDI input port for note ons
type Keyboard struct {
	id       string
	stopFunc func()
	once     sync.Once
	noteChan chan NoteEvent
}

// OpenKeyboard listens on the input port matching name (first port if empty).
func OpenKeyboard(name string) (*Keyboard, error) {
	res, err := scan(ScanTimeout)
	if err != nil {
		return nil, err
	}
	port, ok := matchPort(res.in, name)
	if !ok {
		return nil, fault.Wrap(ErrPortNotFound, fmsg.WithDesc("open input "+name, fmt.Sprintf("No MIDI input matching %q", name)))
	}
	return NewKeyboard(port.String(), port)
}

// NewKeyboard creates a keyboard listening on inPort. A nil port gives a
// keyboard fed only through Feed.
func NewKeyboard(id string, inPort drivers.In) (*Keyboard, error) {
	kb := &Keyboard{
		id:       id,
		noteChan: make(chan NoteEvent, 32),
	}
	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			kb.Feed(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		kb.stopFunc = stop
	}
	return kb, nil
}

func (kb *Keyboard) ID() string {
	return kb.id
}

// Feed handles one incoming message. Note ons with velocity 0 are note offs
// and ignored. Events are dropped when the buffer is full.
func (kb *Keyboard) Feed(msg gomidi.Message) {
	var channel, note, velocity uint8
	if msg.GetNoteOn(&channel, &note, &velocity) && velocity > 0 {
		select {
		case kb.noteChan <- NoteEvent{Note: note, Velocity: velocity, Channel: channel}:
		default:
		}
	}
}

// NoteEvents returns the stream of played notes
func (kb *Keyboard) NoteEvents() <-chan NoteEvent {
	return kb.noteChan
}

// Pump calls fn for every note until ctx ends or the keyboard is closed.
func (kb *Keyboard) Pump(ctx context.Context, fn func(NoteEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-kb.noteChan:
			if !ok {
				return
			}
			fn(evt)
		}
	}
}

func (kb *Keyboard) Close() error {
	kb.once.Do(func() {
		if kb.stopFunc != nil {
			kb.stopFunc()
		}
		close(kb.noteChan)
	})
	return nil
}
