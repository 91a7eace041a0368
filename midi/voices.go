package midi

import (
	"sync"

	"beatseq/sequencer"
)

// DrumChannel is the General MIDI percussion channel (10 in 1-based terms).
const DrumChannel uint8 = 9

// Voice is the output resource bound to a track.
type Voice struct {
	Channel uint8
	Drum    bool
}

// VoiceTable maps tracks to MIDI channels. It belongs to the output, not to
// the project: tracks only carry parameters.
type VoiceTable struct {
	mu     sync.Mutex
	voices map[sequencer.TrackID]Voice
	base   uint8
	next   uint8
}

// NewVoiceTable hands out melodic channels starting at base (0-15), skipping
// the drum channel.
func NewVoiceTable(base uint8) *VoiceTable {
	base %= 16
	if base == DrumChannel {
		base++
	}
	return &VoiceTable{
		voices: make(map[sequencer.TrackID]Voice),
		base:   base,
		next:   base,
	}
}

// Acquire returns the voice of a track, allocating one on first use.
func (v *VoiceTable) Acquire(id sequencer.TrackID, drum bool) Voice {
	v.mu.Lock()
	defer v.mu.Unlock()

	if voice, ok := v.voices[id]; ok && voice.Drum == drum {
		return voice
	}
	voice := Voice{Channel: DrumChannel, Drum: true}
	if !drum {
		voice = Voice{Channel: v.next}
		v.next = (v.next + 1) % 16
		if v.next == DrumChannel {
			v.next = (v.next + 1) % 16
		}
	}
	v.voices[id] = voice
	return voice
}

// Release forgets the voice of a removed track.
func (v *VoiceTable) Release(id sequencer.TrackID) {
	v.mu.Lock()
	delete(v.voices, id)
	v.mu.Unlock()
}

// Sync releases voices of tracks no longer in p.
func (v *VoiceTable) Sync(p *sequencer.Project) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id := range v.voices {
		if p.Track(id) == nil {
			delete(v.voices, id)
		}
	}
}

// Channels returns every channel currently bound to a track.
func (v *VoiceTable) Channels() []uint8 {
	v.mu.Lock()
	defer v.mu.Unlock()
	seen := make(map[uint8]bool)
	var out []uint8
	for _, voice := range v.voices {
		if !seen[voice.Channel] {
			seen[voice.Channel] = true
			out = append(out, voice.Channel)
		}
	}
	return out
}
