package midi

import "slices"

// DrumKit maps the sixteen General MIDI drum slots to the notes a particular
// drum machine listens on.
type DrumKit struct {
	Name  string
	Notes [16]uint8
}

// gm slot order: kick, snare, closed hh, open hh, low/mid/high tom, crash,
// ride, clap, rimshot, cowbell, clave, maracas, low/high conga
var gmSlots = [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 64, 63}

var kits = map[string]DrumKit{
	"gm": {Name: "General MIDI", Notes: gmSlots},
	"rd8": {
		Name:  "Behringer RD-8",
		Notes: [16]uint8{36, 40, 42, 46, 45, 48, 50, 49, 51, 39, 37, 56, 75, 70, 64, 63},
	},
	"tr8s": {
		Name:  "Roland TR-8S",
		Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 62, 63},
	},
	"er1": {
		Name:  "Korg ER-1",
		Notes: [16]uint8{36, 38, 42, 46, 40, 41, 43, 49, 45, 39, 37, 56, 75, 70, 64, 63},
	},
}

const DefaultKit = "gm"

// KitNames returns the available kit names, sorted.
func KitNames() []string {
	names := make([]string, 0, len(kits))
	for name := range kits {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Kit returns a kit by name, defaulting to General MIDI.
func Kit(name string) DrumKit {
	if kit, ok := kits[name]; ok {
		return kit
	}
	return kits[DefaultKit]
}

// Map translates a General MIDI drum note to this kit. Notes outside the
// sixteen slots pass through unchanged.
func (k DrumKit) Map(note uint8) uint8 {
	if i := slices.Index(gmSlots[:], note); i >= 0 {
		return k.Notes[i]
	}
	return note
}
