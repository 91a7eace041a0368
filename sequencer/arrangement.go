package sequencer

import (
	"cmp"
	"fmt"
	"slices"
)

// PatternBlock places one of a track's pattern variants on the bar timeline.
// A bar is one pass over StepsPerPattern steps. Blocks of the same track never
// overlap, so (TrackID, StartBar) identifies a block.
type PatternBlock struct {
	TrackID    TrackID `yaml:"track" json:"trackId"`
	StartBar   int     `yaml:"start" json:"startBar"`
	LengthBars int     `yaml:"length" json:"lengthBars"`
	Pattern    int     `yaml:"pattern" json:"pattern"`
	Category   string  `yaml:"category,omitempty" json:"category,omitempty"`
}

// EndBar is the first bar after the block.
func (b PatternBlock) EndBar() int {
	return b.StartBar + b.LengthBars
}

// Covers reports whether bar falls inside the block.
func (b PatternBlock) Covers(bar int) bool {
	return bar >= b.StartBar && bar < b.EndBar()
}

// inBounds reports whether the block lies within bars 0..MaxBars.
func (b PatternBlock) inBounds() bool {
	return b.StartBar >= 0 && b.LengthBars >= 1 && b.LengthBars <= MaxBars-b.StartBar
}

func (b PatternBlock) overlaps(o PatternBlock) bool {
	return b.TrackID == o.TrackID && b.StartBar < o.EndBar() && o.StartBar < b.EndBar()
}

// ArrangementLength returns the number of bars up to the end of the last block.
func (p *Project) ArrangementLength() int {
	n := 0
	for _, b := range p.Arrangement {
		n = max(n, b.EndBar())
	}
	return n
}

// BlockAt returns the block of a track covering bar, or nil.
func (p *Project) BlockAt(id TrackID, bar int) *PatternBlock {
	for i := range p.Arrangement {
		if b := &p.Arrangement[i]; b.TrackID == id && b.Covers(bar) {
			return b
		}
	}
	return nil
}

func (p *Project) blockIndex(id TrackID, startBar int) int {
	return slices.IndexFunc(p.Arrangement, func(b PatternBlock) bool {
		return b.TrackID == id && b.StartBar == startBar
	})
}

// checkBlock validates b against the project, ignoring the block at skip.
func (p *Project) checkBlock(b PatternBlock, skip int) error {
	t, err := trackOf(p, b.TrackID)
	if err != nil {
		return err
	}
	if !b.inBounds() {
		return invalid(ErrOutOfRange, fmt.Sprintf("block bars %d+%d outside 0..%d", b.StartBar, b.LengthBars, MaxBars))
	}
	if t.PatternAt(b.Pattern) == nil {
		return invalid(ErrOutOfRange, fmt.Sprintf("track %d has no pattern %d", b.TrackID, b.Pattern))
	}
	for i, o := range p.Arrangement {
		if i != skip && b.overlaps(o) {
			return conflict(ErrBlockOverlap, fmt.Sprintf("bars %d-%d overlap the block at bar %d", b.StartBar, b.EndBar()-1, o.StartBar))
		}
	}
	return nil
}

func (p *Project) sortArrangement() {
	slices.SortFunc(p.Arrangement, func(a, b PatternBlock) int {
		if c := cmp.Compare(a.StartBar, b.StartBar); c != 0 {
			return c
		}
		return cmp.Compare(p.TrackIndex(a.TrackID), p.TrackIndex(b.TrackID))
	})
}

// AddBlock places a block. Overlapping another block of the same track is
// rejected.
func (s *Session) AddBlock(b PatternBlock) error {
	return s.apply("Add block", func(p *Project) error {
		if err := p.checkBlock(b, -1); err != nil {
			return err
		}
		p.Arrangement = append(p.Arrangement, b)
		p.sortArrangement()
		return nil
	})
}

// editBlock finds the block at (id, startBar), lets fn change a copy and
// stores it if it still fits.
func (s *Session) editBlock(label string, id TrackID, startBar int, fn func(b *PatternBlock)) error {
	return s.apply(label, func(p *Project) error {
		i := p.blockIndex(id, startBar)
		if i < 0 {
			return notFound(ErrBlockNotFound, fmt.Sprintf("no block of track %d starts at bar %d", id, startBar))
		}
		b := p.Arrangement[i]
		fn(&b)
		if b == p.Arrangement[i] {
			return errNoChange
		}
		if err := p.checkBlock(b, i); err != nil {
			return err
		}
		p.Arrangement[i] = b
		p.sortArrangement()
		return nil
	})
}

func (s *Session) MoveBlock(id TrackID, startBar, newStart int) error {
	return s.editBlock("Move block", id, startBar, func(b *PatternBlock) {
		b.StartBar = newStart
	})
}

func (s *Session) ResizeBlock(id TrackID, startBar, lengthBars int) error {
	return s.editBlock("Resize block", id, startBar, func(b *PatternBlock) {
		b.LengthBars = lengthBars
	})
}

// SetBlockPattern points a block at another pattern variant and category.
func (s *Session) SetBlockPattern(id TrackID, startBar, pattern int, category string) error {
	return s.editBlock("Block pattern", id, startBar, func(b *PatternBlock) {
		b.Pattern = pattern
		b.Category = category
	})
}

func (s *Session) RemoveBlock(id TrackID, startBar int) error {
	return s.apply("Remove block", func(p *Project) error {
		i := p.blockIndex(id, startBar)
		if i < 0 {
			return notFound(ErrBlockNotFound, fmt.Sprintf("no block of track %d starts at bar %d", id, startBar))
		}
		p.Arrangement = slices.Delete(p.Arrangement, i, i+1)
		return nil
	})
}
