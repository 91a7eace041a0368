package sequencer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Pitch is a MIDI note number. It is stored in documents as a note name with
// octave ("C4" = 60, "F#2" = 42).
type Pitch uint8

const MaxPitch Pitch = 127

var pitchNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var pitchClasses = map[string]int{
	"C":  0,
	"C#": 1, "DB": 1,
	"D":  2,
	"D#": 3, "EB": 3,
	"E":  4,
	"F":  5,
	"F#": 6, "GB": 6,
	"G":  7,
	"G#": 8, "AB": 8,
	"A":  9,
	"A#": 10, "BB": 10,
	"B":  11,
}

func (p Pitch) String() string {
	return fmt.Sprintf("%s%d", pitchNames[p%12], int(p)/12-1)
}

// Frequency returns the equal-tempered frequency in Hz (A4 = 440).
func (p Pitch) Frequency() float64 {
	return 440 * math.Pow(2, (float64(p)-69)/12)
}

// ParsePitch parses "C4", "Eb3", "f#-1" or a bare MIDI number like "60".
func ParsePitch(s string) (Pitch, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > int(MaxPitch) {
			return 0, fmt.Errorf("pitch %d: %w", n, ErrOutOfRange)
		}
		return Pitch(n), nil
	}

	split := 1
	if len(s) > 1 && (s[1] == '#' || s[1] == 'b' || s[1] == 'B') {
		split = 2
	}
	if len(s) <= split {
		return 0, fmt.Errorf("pitch %q: missing octave", s)
	}
	class, ok := pitchClasses[strings.ToUpper(s[:split])]
	if !ok {
		return 0, fmt.Errorf("pitch %q: unknown note name", s)
	}
	octave, err := strconv.Atoi(s[split:])
	if err != nil {
		return 0, fmt.Errorf("pitch %q: bad octave", s)
	}
	n := (octave+1)*12 + class
	if n < 0 || n > int(MaxPitch) {
		return 0, fmt.Errorf("pitch %q: %w", s, ErrOutOfRange)
	}
	return Pitch(n), nil
}

func (p Pitch) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pitch) UnmarshalText(text []byte) error {
	v, err := ParsePitch(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
