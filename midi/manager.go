package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"beatseq/debug"
)

// DeviceEvent is emitted when keyboards connect/disconnect
type DeviceEvent struct {
	Type     DeviceEventType
	Keyboard *Keyboard
	ID       string
}

type DeviceEventType int

const (
	DeviceConnected DeviceEventType = iota
	DeviceDisconnected
)

// DeviceManager handles hot-plug detection of MIDI keyboards. Notes from every
// connected keyboard are handed to one callback.
type DeviceManager struct {
	keyboards map[string]*Keyboard
	mu        sync.RWMutex
	events    chan DeviceEvent
	pollRate  time.Duration
	match     string
	onNote    func(NoteEvent)

	list func() ([]string, error)
	open func(id string) (*Keyboard, error)
}

// NewDeviceManager watches input ports whose name contains match (all ports
// if empty) and calls onNote for every note played on them.
func NewDeviceManager(match string, onNote func(NoteEvent)) *DeviceManager {
	return &DeviceManager{
		keyboards: make(map[string]*Keyboard),
		events:    make(chan DeviceEvent, 16),
		pollRate:  time.Second,
		match:     strings.ToLower(match),
		onNote:    onNote,
		list:      listInputs,
		open:      openInput,
	}
}

func listInputs() ([]string, error) {
	ports, err := ListPorts()
	return ports.In, err
}

func openInput(id string) (*Keyboard, error) {
	res, err := scan(ScanTimeout)
	if err != nil {
		return nil, err
	}
	for _, in := range res.in {
		if in.String() == id {
			return NewKeyboard(id, in)
		}
	}
	return nil, ErrPortNotFound
}

// Events returns a channel of device connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Keyboards returns the IDs of connected keyboards
func (dm *DeviceManager) Keyboards() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	ids := make([]string, 0, len(dm.keyboards))
	for id := range dm.keyboards {
		ids = append(ids, id)
	}
	return ids
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	dm.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.scan(ctx)
		}
	}
}

func (dm *DeviceManager) scan(ctx context.Context) {
	names, err := dm.list()
	if err != nil {
		// CoreMIDI is hung - skip this scan
		debug.LogEvery(10, "midi", "scan inputs: %v", err)
		return
	}

	seenIDs := make(map[string]bool)
	for _, id := range names {
		if !dm.wants(id) {
			continue
		}
		seenIDs[id] = true

		dm.mu.RLock()
		_, exists := dm.keyboards[id]
		dm.mu.RUnlock()
		if exists {
			continue
		}

		kb, err := dm.open(id)
		if err != nil {
			debug.Warn("midi", "open keyboard %s: %v", id, err)
			continue
		}
		dm.mu.Lock()
		dm.keyboards[id] = kb
		dm.mu.Unlock()
		if dm.onNote != nil {
			go kb.Pump(ctx, dm.onNote)
		}
		debug.Info("midi", "keyboard connected: %s", id)
		dm.emit(DeviceEvent{Type: DeviceConnected, Keyboard: kb, ID: id})
	}

	dm.mu.Lock()
	var gone []string
	for id, kb := range dm.keyboards {
		if !seenIDs[id] {
			kb.Close()
			delete(dm.keyboards, id)
			gone = append(gone, id)
		}
	}
	dm.mu.Unlock()
	for _, id := range gone {
		debug.Info("midi", "keyboard disconnected: %s", id)
		dm.emit(DeviceEvent{Type: DeviceDisconnected, ID: id})
	}
}

// emit drops events nobody is reading.
func (dm *DeviceManager) emit(evt DeviceEvent) {
	select {
	case dm.events <- evt:
	default:
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	for _, kb := range dm.keyboards {
		kb.Close()
	}
	dm.keyboards = make(map[string]*Keyboard)
}

func (dm *DeviceManager) wants(name string) bool {
	name = strings.ToLower(name)
	if strings.Contains(name, "through") {
		return false
	}
	return dm.match == "" || strings.Contains(name, dm.match)
}
