package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Southclaws/fault/fmsg"

	"beatseq/debug"
	"beatseq/midi"
	"beatseq/sequencer"
	"beatseq/store"
	"beatseq/theme"
	"beatseq/widgets"
)

type Model struct {
	Session   *sequencer.Session
	Transport *sequencer.Transport
	Theme     *theme.Theme

	// Optional: saving with w, and a MIDI keyboard for recording
	Store     *store.Store
	Project   string
	DeviceMgr *midi.DeviceManager
	Notes     <-chan midi.NoteEvent

	row, col  int
	pitch     sequencer.Pitch
	status    string
	versions  bool
	help      bool
	keyboards int
	quitting  bool
}

type UpdateMsg struct{}

type NoteMsg midi.NoteEvent

type DeviceEventMsg midi.DeviceEvent

func NewModel(session *sequencer.Session, transport *sequencer.Transport, th *theme.Theme) Model {
	if th == nil {
		th = theme.New(nil)
	}
	return Model{
		Session:   session,
		Transport: transport,
		Theme:     th,
		pitch:     60,
	}
}

func ListenForUpdates(transport *sequencer.Transport) tea.Cmd {
	return func() tea.Msg {
		<-transport.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForNotes(notes <-chan midi.NoteEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-notes
		if !ok {
			return nil
		}
		return NoteMsg(evt)
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{ListenForUpdates(m.Transport)}
	if m.Notes != nil {
		cmds = append(cmds, ListenForNotes(m.Notes))
	}
	if m.DeviceMgr != nil {
		cmds = append(cmds, ListenForDevices(m.DeviceMgr))
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Transport)

	case NoteMsg:
		if t := m.track(); t != nil {
			ok, err := m.Session.RecordNote(m.Transport, t.ID, sequencer.Pitch(msg.Note), int(msg.Velocity))
			m.report(err)
			if ok {
				debug.Log("tui", "recorded %v on %s", sequencer.Pitch(msg.Note), t.Name)
			}
		}
		return m, ListenForNotes(m.Notes)

	case DeviceEventMsg:
		if msg.Type == midi.DeviceConnected {
			m.keyboards++
			m.status = "keyboard connected: " + msg.ID
		} else {
			m.keyboards = max(0, m.keyboards-1)
			m.status = "keyboard disconnected: " + msg.ID
		}
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	p := m.Session.Snapshot()
	m.status = ""

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.Transport.Stop()
		m.Session.Flush()
		return m, tea.Quit

	case "p":
		m.report(m.Transport.Toggle())

	case "R":
		m.Transport.SetRecording(!m.Transport.Recording())

	case "+", "=":
		m.report(m.Session.SetBPM(p.BPM + 5))

	case "-", "_":
		m.report(m.Session.SetBPM(p.BPM - 5))

	case "h", "left":
		m.col = max(0, m.col-1)
	case "l", "right":
		m.col = min(p.StepsPerPattern-1, m.col+1)
	case "k", "up":
		m.row = max(0, m.row-1)
	case "j", "down":
		m.row = min(max(0, len(p.Tracks)-1), m.row+1)

	case ",":
		m.pitch = max(0, m.pitch-1)
	case ".":
		m.pitch = min(sequencer.MaxPitch, m.pitch+1)

	case " ", "enter":
		m.toggleCell()

	case "a":
		_, err := m.Session.AddTrack("", sequencer.KindSteps)
		m.report(err)
	case "A":
		_, err := m.Session.AddTrack("", sequencer.KindNotes)
		m.report(err)
	case "x":
		if t := m.track(); t != nil {
			m.report(m.Session.RemoveTrack(t.ID))
		}

	case "m":
		if t := m.track(); t != nil {
			m.report(m.Session.ToggleMute(t.ID))
		}
	case "s":
		if t := m.track(); t != nil {
			m.report(m.Session.ToggleSolo(t.ID))
		}
	case "c":
		if t := m.track(); t != nil {
			m.report(m.Session.ClearPattern(t.ID))
		}
	case "n":
		if t := m.track(); t != nil {
			_, err := m.Session.AddPattern(t.ID)
			m.report(err)
		}
	case "[", "]":
		if t := m.track(); t != nil {
			next := t.Active + 1
			if key == "[" {
				next = t.Active - 1
			}
			if next >= 0 && next < len(t.Patterns) {
				m.report(m.Session.SelectPattern(t.ID, next))
			}
		}

	case "u":
		if !m.Session.Undo() {
			m.status = "nothing to undo"
		}
	case "r":
		if !m.Session.Redo() {
			m.status = "nothing to redo"
		}
	case "S":
		versions, _ := m.Session.Versions()
		v := m.Session.SaveVersion(fmt.Sprintf("Version %d", len(versions)), "")
		m.status = "saved " + v.Name
	case "v":
		m.versions = !m.versions
	case "w":
		m.write()
	case "?":
		m.help = !m.help
	}

	// Keep the cursor on a track after removals and undo
	if n := len(m.Session.Snapshot().Tracks); m.row >= n {
		m.row = max(0, n-1)
	}
	return m, nil
}

// toggleCell flips the step under the cursor, or adds/removes a note there.
func (m *Model) toggleCell() {
	t := m.track()
	if t == nil {
		return
	}
	if t.Kind == sequencer.KindSteps {
		m.report(m.Session.ToggleStep(t.ID, m.col))
		return
	}
	if pat := t.ActivePattern(); pat != nil {
		for _, n := range pat.Notes {
			if n.StartStep == m.col && n.Pitch == m.pitch {
				m.report(m.Session.RemoveNote(t.ID, n.ID))
				return
			}
		}
	}
	_, err := m.Session.AddNote(t.ID, m.pitch, m.col, 1, sequencer.DefaultVelocity)
	m.report(err)
}

func (m *Model) write() {
	if m.Store == nil {
		m.status = "no project store"
		return
	}
	m.Session.Flush()
	info, err := m.Store.Save(m.Project, m.Session.Snapshot(), "")
	if err != nil {
		m.report(err)
		return
	}
	m.status = "wrote " + info.Filename
}

func (m *Model) report(err error) {
	if err == nil {
		return
	}
	if issue := fmsg.GetIssue(err); issue != "" {
		m.status = issue
	} else {
		m.status = err.Error()
	}
	debug.Log("tui", "%v", err)
}

func (m Model) track() *sequencer.Track {
	p := m.Session.Snapshot()
	if m.row < 0 || m.row >= len(p.Tracks) {
		return nil
	}
	return &p.Tracks[m.row]
}

var keys = []widgets.KeyBinding{
	{Key: "p", Desc: "play"},
	{Key: "space", Desc: "toggle"},
	{Key: "hjkl", Desc: "nav"},
	{Key: "+/-", Desc: "tempo"},
	{Key: "u/r", Desc: "undo/redo"},
	{Key: "?", Desc: "help"},
	{Key: "q", Desc: "quit"},
}

var helpSections = []widgets.KeySection{
	{Title: "Transport", Keys: []widgets.KeyBinding{
		{Key: "p", Desc: "play / stop"},
		{Key: "R", Desc: "arm recording"},
		{Key: "+ -", Desc: "tempo"},
	}},
	{Title: "Edit", Keys: []widgets.KeyBinding{
		{Key: "space", Desc: "toggle step / note"},
		{Key: ", .", Desc: "note pitch"},
		{Key: "a A x", Desc: "add steps / notes track, remove"},
		{Key: "m s", Desc: "mute, solo"},
		{Key: "n [ ]", Desc: "new pattern, previous, next"},
		{Key: "c", Desc: "clear pattern"},
	}},
	{Title: "History", Keys: []widgets.KeyBinding{
		{Key: "u r", Desc: "undo, redo"},
		{Key: "S", Desc: "save version"},
		{Key: "v", Desc: "show versions"},
		{Key: "w", Desc: "write project"},
	}},
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	p := m.Session.Snapshot()
	th := m.Theme
	headerStyle := lipgloss.NewStyle().Foreground(th.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(th.Muted())
	statusStyle := lipgloss.NewStyle().Foreground(th.Warning())

	playState := "STOP"
	if m.Transport.Playing() {
		playState = "PLAY"
	}
	if m.Transport.Recording() {
		playState += " REC"
	}
	step := m.Transport.Position()
	kb := ""
	if m.keyboards > 0 {
		kb = fmt.Sprintf("  kbd:%d", m.keyboards)
	}
	header := headerStyle.Render(fmt.Sprintf("%s  %s  %3dbpm  step:%02d  note:%v%s",
		p.Name, playState, p.BPM, step, m.pitch, kb))

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")

	if len(p.Tracks) == 0 {
		out.WriteString(dimStyle.Render("no tracks: a adds a steps track, A a notes track"))
		out.WriteString("\n")
	}
	for i := range p.Tracks {
		out.WriteString(m.trackRow(p, i, step))
		out.WriteString("\n")
	}

	if m.versions {
		out.WriteString("\n")
		out.WriteString(m.versionList())
	}
	if m.help {
		out.WriteString("\n")
		out.WriteString(widgets.RenderKeyHelp(helpSections))
		out.WriteString("\n")
	}

	out.WriteString("\n")
	out.WriteString(dimStyle.Render(widgets.RenderKeyLine(keys)))
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(statusStyle.Render(m.status))
	}
	return out.String()
}

func (m Model) trackRow(p *sequencer.Project, i, step int) string {
	t := &p.Tracks[i]
	th := m.Theme
	nameStyle := lipgloss.NewStyle().Width(10).Foreground(th.FG())
	if i == m.row {
		nameStyle = nameStyle.Foreground(th.Cursor()).Bold(true)
	}
	if !p.Audible(t.ID) {
		nameStyle = nameStyle.Foreground(th.Muted())
	}

	cells := make([]widgets.Cell, p.StepsPerPattern)
	pat := t.ActivePattern()
	for s := range cells {
		c := &cells[s]
		c.Playhead = m.Transport.Playing() && s == step
		c.Cursor = i == m.row && s == m.col
		if pat == nil {
			continue
		}
		if t.Kind == sequencer.KindSteps {
			c.Beyond = s >= len(pat.Steps)
			c.Active = !c.Beyond && pat.Steps[s]
			continue
		}
		for _, n := range pat.Notes {
			if s >= n.StartStep && s < n.StartStep+n.DurationSteps {
				c.Active = true
				break
			}
		}
	}

	flags := []rune{' ', ' '}
	if t.Mute {
		flags[0] = th.Symbols.Mute
	}
	if t.Solo {
		flags[1] = th.Symbols.Solo
	}
	name := t.Name
	if len(name) > 9 {
		name = name[:9]
	}
	return fmt.Sprintf("%s %s %s %s p%d",
		nameStyle.Render(name),
		string(flags),
		widgets.RenderStepRow(th, cells, p.GridDivision),
		widgets.RenderMeter(th, p.Gain(t), 4),
		t.Active+1,
	)
}

func (m Model) versionList() string {
	versions, current := m.Session.Versions()
	var lines []string
	for i, v := range versions {
		marker := "  "
		if i == current {
			marker = "> "
		}
		name := v.Name
		if v.Pending {
			name += " …"
		}
		kind := "auto"
		if !v.IsAutoSave {
			kind = "save"
		}
		lines = append(lines, fmt.Sprintf("%s%s %-4s %s", marker, v.Timestamp.Format("15:04:05"), kind, name))
	}
	return strings.Join(lines, "\n") + "\n"
}
