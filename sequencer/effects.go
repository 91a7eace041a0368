package sequencer

import "fmt"

// EffectKind selects one of the fixed per-track effects.
type EffectKind int

const (
	Reverb EffectKind = iota
	Delay
	Distortion
	numEffects
)

var effectNames = [numEffects]string{"reverb", "delay", "distortion"}

func (k EffectKind) String() string {
	if k < 0 || k >= numEffects {
		return fmt.Sprintf("EffectKind(%d)", int(k))
	}
	return effectNames[k]
}

// Valid reports whether k names a known effect.
func (k EffectKind) Valid() bool {
	return k >= 0 && k < numEffects
}

// ParseEffectKind maps "reverb", "delay" or "distortion" to its kind.
func ParseEffectKind(s string) (EffectKind, error) {
	for i, name := range effectNames {
		if name == s {
			return EffectKind(i), nil
		}
	}
	return 0, invalid(ErrOutOfRange, fmt.Sprintf("unknown effect %q", s))
}

// EffectSettings holds the wet amount (0..1) of each effect.
type EffectSettings struct {
	Reverb     float64 `yaml:"reverb" json:"reverb"`
	Delay      float64 `yaml:"delay" json:"delay"`
	Distortion float64 `yaml:"distortion" json:"distortion"`
}

// Get returns the amount for an effect. Unknown kinds read as 0.
func (e EffectSettings) Get(k EffectKind) float64 {
	switch k {
	case Reverb:
		return e.Reverb
	case Delay:
		return e.Delay
	case Distortion:
		return e.Distortion
	}
	return 0
}

// Set clamps amount to 0..1 and stores it. Returns false for unknown kinds.
func (e *EffectSettings) Set(k EffectKind, amount float64) bool {
	amount = clampFloat(amount, 0, 1)
	switch k {
	case Reverb:
		e.Reverb = amount
	case Delay:
		e.Delay = amount
	case Distortion:
		e.Distortion = amount
	default:
		return false
	}
	return true
}
