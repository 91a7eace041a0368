package widgets

import (
	"strings"

	"beatseq/theme"

	"github.com/charmbracelet/lipgloss"
)

// Cell is one step of a row as the grid draws it.
type Cell struct {
	Active   bool
	Playhead bool
	Cursor   bool
	Beyond   bool // past the pattern length
}

// RenderCell picks the symbol and color of a step.
func RenderCell(th *theme.Theme, c Cell) string {
	sym := th.Symbols
	style := lipgloss.NewStyle().Foreground(th.Muted())
	r := sym.StepEmpty
	switch {
	case c.Beyond:
		r = sym.StepBeyond
	case c.Cursor && c.Active:
		r, style = sym.CursorActive, style.Foreground(th.Cursor())
	case c.Cursor:
		r, style = sym.CursorEmpty, style.Foreground(th.Cursor())
	case c.Playhead:
		r, style = sym.StepPlayhead, style.Foreground(th.Success())
	case c.Active:
		r, style = sym.StepActive, style.Foreground(th.Active())
	}
	return style.Render(string(r))
}

// RenderStepRow draws a row of cells, with a wider gap every beat.
func RenderStepRow(th *theme.Theme, cells []Cell, beat int) string {
	var out strings.Builder
	for i, c := range cells {
		if i > 0 {
			out.WriteString(" ")
			if beat > 0 && i%beat == 0 {
				out.WriteString(" ")
			}
		}
		out.WriteString(RenderCell(th, c))
	}
	return out.String()
}

// RenderMeter draws amount (0-1) as a bar of width cells.
func RenderMeter(th *theme.Theme, amount float64, width int) string {
	amount = max(0, min(1, amount))
	n := int(amount*float64(width) + 0.5)
	return th.Level(amount).Render(strings.Repeat("▮", n)) +
		lipgloss.NewStyle().Foreground(th.Muted()).Render(strings.Repeat("▯", width-n))
}
