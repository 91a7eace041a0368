package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"beatseq/api"
	"beatseq/audio"
	"beatseq/debug"
	"beatseq/midi"
	"beatseq/render"
	"beatseq/sequencer"
	"beatseq/theme"
	"beatseq/tui"
)

var (
	outFile    string
	demo       bool
	wavOut     string
	midOut     string
	loops      int
	pcm16      bool
	sampleRate int
	midiOut    string
	keyboard   string
	kit        string
	listen     string
	palette    string
)

var newCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a project in the store (or a file with -o)",
	Args:  cobra.ExactArgs(1),
	RunE:  runNew,
}

var infoCmd = &cobra.Command{
	Use:   "info <project|file.yaml>",
	Short: "Show a project's tracks, arrangement and saves",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var renderCmd = &cobra.Command{
	Use:   "render <project|file.yaml>",
	Short: "Render a project offline to WAV and/or MIDI",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

var playCmd = &cobra.Command{
	Use:   "play <project|file.yaml>",
	Short: "Render a project and play it on the audio device",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

var tuiCmd = &cobra.Command{
	Use:   "tui [project]",
	Short: "Edit a project in the terminal",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve [project]",
	Short: "Serve a project over HTTP for the web editor",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runServe,
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports and drum kits",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

func init() {
	newCmd.Flags().StringVarP(&outFile, "output", "o", "", "write the project to this file instead of the store")
	newCmd.Flags().BoolVar(&demo, "demo", false, "start with a drum beat and a bass line")

	for _, cmd := range []*cobra.Command{renderCmd, playCmd} {
		cmd.Flags().IntVar(&loops, "loops", 0, "loop the active patterns this many times instead of the arrangement")
		cmd.Flags().IntVar(&sampleRate, "sample-rate", 0, "sample rate (config default)")
	}
	renderCmd.Flags().StringVar(&wavOut, "wav", "", "WAV output file")
	renderCmd.Flags().StringVar(&midOut, "mid", "", "Standard MIDI File output")
	renderCmd.Flags().BoolVar(&pcm16, "pcm16", false, "16-bit PCM WAV instead of float32")

	for _, cmd := range []*cobra.Command{tuiCmd, serveCmd} {
		cmd.Flags().StringVar(&midiOut, "midi-out", "", "MIDI output port (substring match, config default)")
		cmd.Flags().StringVar(&kit, "kit", "", "drum kit: "+strings.Join(midi.KitNames(), ", "))
	}
	tuiCmd.Flags().StringVar(&keyboard, "keyboard", "", "record from MIDI inputs matching this name")
	tuiCmd.Flags().StringVar(&palette, "palette", "", "GIMP palette file for colors")
	serveCmd.Flags().StringVar(&listen, "listen", "", "listen address (config default)")
}

func runNew(cmd *cobra.Command, args []string) error {
	p := cfg.NewProject(args[0])
	if demo {
		var err error
		if p, err = demoProject(p); err != nil {
			return err
		}
	}

	if outFile != "" {
		data, err := sequencer.SerializeProject(p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outFile, data, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", outFile)
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	if err := st.CreateProject(args[0]); err != nil {
		return err
	}
	info, err := st.Save(args[0], p, "new")
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\n", args[0], info.Filename)
	return nil
}

// demoProject fills p through a session, the same way an editor would.
func demoProject(p *sequencer.Project) (*sequencer.Project, error) {
	s := sequencer.NewSession(p, nil)
	beat := []struct {
		name  string
		steps []int
	}{
		{"Kick", []int{0, 4, 8, 12}},
		{"Snare", []int{4, 12}},
		{"Hat", []int{2, 6, 10, 14}},
	}
	for _, b := range beat {
		id, err := s.AddTrack(b.name, sequencer.KindSteps)
		if err != nil {
			return nil, err
		}
		for _, step := range b.steps {
			if step < p.StepsPerPattern {
				if err := s.SetStep(id, step, true); err != nil {
					return nil, err
				}
			}
		}
		if err := s.AddBlock(sequencer.PatternBlock{TrackID: id, StartBar: 0, LengthBars: 4}); err != nil {
			return nil, err
		}
	}

	bass, err := s.AddTrack("Bass", sequencer.KindNotes)
	if err != nil {
		return nil, err
	}
	for i, pitch := range []sequencer.Pitch{36, 36, 39, 41} {
		start := i * p.StepsPerPattern / 4
		if _, err := s.AddNote(bass, pitch, start, 2, sequencer.DefaultVelocity); err != nil {
			return nil, err
		}
	}
	if err := s.AddBlock(sequencer.PatternBlock{TrackID: bass, StartBar: 2, LengthBars: 2}); err != nil {
		return nil, err
	}
	return s.Project(), nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	p, stored, err := loadProject(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s  %d bpm  %d steps  1/%d grid  master %.2f\n", p.Name, p.BPM, p.StepsPerPattern, p.GridDivision*4, p.MasterVolume)
	for _, t := range p.Tracks {
		flags := ""
		if t.Mute {
			flags += " muted"
		}
		if t.Solo {
			flags += " solo"
		}
		content := ""
		if pat := t.ActivePattern(); pat != nil {
			if t.Kind == sequencer.KindSteps {
				n := 0
				for _, on := range pat.Steps {
					if on {
						n++
					}
				}
				content = fmt.Sprintf("%d steps on, sound %v", n, t.Note)
			} else {
				content = fmt.Sprintf("%d notes", len(pat.Notes))
			}
		}
		fmt.Printf("  %2d %-12s %-5s %d patterns  %+.1f dB  pan %+.2f  %s%s\n",
			t.ID, t.Name, t.Kind, len(t.Patterns), t.Volume, t.Pan, content, flags)
	}
	fmt.Printf("arrangement: %d blocks, %d bars\n", len(p.Arrangement), p.ArrangementLength())

	if stored == "" {
		return nil
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	saves, err := st.ListSaves(stored)
	if err != nil {
		return err
	}
	fmt.Printf("saves:\n")
	for _, s := range saves {
		fmt.Printf("  %s  %s\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.Name)
	}
	return nil
}

func renderOptions() render.Options {
	rate := cfg.Audio.SampleRate
	if sampleRate > 0 {
		rate = sampleRate
	}
	return render.Options{
		SampleRate: rate,
		Tail:       cfg.Audio.Tail,
		Loops:      loops,
		Progress: func(bar, bars int) {
			debug.LogEvery(8, "render", "bar %d/%d", bar, bars)
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRender(cmd *cobra.Command, args []string) error {
	if wavOut == "" && midOut == "" {
		return fmt.Errorf("nothing to write: pass --wav and/or --mid")
	}
	p, _, err := loadProject(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := render.Render(ctx, p, renderOptions())
	if err != nil {
		return err
	}
	fmt.Printf("rendered %d bars, %v, %d triggers\n", res.Bars, res.Length, len(res.Triggers))

	if wavOut != "" {
		f, err := os.Create(wavOut)
		if err != nil {
			return err
		}
		if err := render.WriteWav(f, res.Frames, res.SampleRate, pcm16); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", wavOut)
	}
	if midOut != "" {
		f, err := os.Create(midOut)
		if err != nil {
			return err
		}
		if err := render.WriteMIDI(f, p, res); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", midOut)
	}
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	p, _, err := loadProject(args[0])
	if err != nil {
		return err
	}
	if loops == 0 && p.ArrangementLength() == 0 {
		loops = 4
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := render.Render(ctx, p, renderOptions())
	if err != nil {
		return err
	}
	if res.Samples() == 0 {
		fmt.Println("nothing to play")
		return nil
	}

	fmt.Printf("playing %s (%v)\n", p.Name, res.Length.Round(time.Millisecond))
	last := -1
	err = audio.Play(ctx, res.Frames, res.SampleRate, func(done float64) {
		if pct := int(done * 100); pct/10 != last/10 {
			last = pct
			fmt.Printf("\r%3d%%", pct)
		}
	})
	fmt.Println()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openOutput connects the configured MIDI port, or a logging sink when none
// is configured.
func openOutput(session *sequencer.Session) (sequencer.TriggerSink, func(), error) {
	port := cfg.MIDI.Output
	if midiOut != "" {
		port = midiOut
	}
	if port == "" {
		sink := sequencer.SinkFunc(func(t sequencer.Trigger) {
			debug.LogEvery(16, "trigger", "track %d pitch %v vel %d", t.TrackID, t.Pitch, t.Velocity)
		})
		return sink, func() {}, nil
	}

	kitName := cfg.MIDI.Kit
	if kit != "" {
		kitName = kit
	}
	voices := midi.NewVoiceTable(cfg.MIDI.BaseChannel)
	session.OnChange(voices.Sync)
	out, err := midi.OpenOutput(port, voices, midi.WithKit(kitName))
	if err != nil {
		return nil, nil, err
	}
	return out, func() { out.Close() }, nil
}

func openSession(args []string) (*sequencer.Session, string, error) {
	name := "untitled"
	var p *sequencer.Project
	if len(args) == 1 {
		loaded, stored, err := loadProject(args[0])
		switch {
		case err == nil:
			p, name = loaded, stored
		case !isFile(args[0]):
			// a new store project
			name = args[0]
			debug.Info("cli", "starting new project %s: %v", name, err)
		default:
			return nil, "", err
		}
	}
	if p == nil {
		p = cfg.NewProject(name)
	}
	return newSession(p), name, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	session, name, err := openSession(args)
	if err != nil {
		return err
	}
	sink, closeSink, err := openOutput(session)
	if err != nil {
		return err
	}
	defer closeSink()

	transport := sequencer.NewTransport(session, sink, nil)
	defer transport.Stop()

	th := theme.New(nil)
	if palette != "" {
		pal, err := theme.LoadGPL(palette)
		if err != nil {
			return err
		}
		th = theme.New(pal)
	}

	m := tui.NewModel(session, transport, th)
	m.Project = name
	if name != "" {
		if st, err := openStore(); err == nil {
			m.Store = st
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	kb := keyboard
	if kb == "" {
		kb = cfg.MIDI.Keyboard
	}
	if kb != "" {
		notes := make(chan midi.NoteEvent, 32)
		devices := midi.NewDeviceManager(kb, func(e midi.NoteEvent) {
			select {
			case notes <- e:
			default:
			}
		})
		go devices.Run(ctx)
		m.DeviceMgr = devices
		m.Notes = notes
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	session.Flush()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	session, name, err := openSession(args)
	if err != nil {
		return err
	}
	sink, closeSink, err := openOutput(session)
	if err != nil {
		return err
	}
	defer closeSink()

	transport := sequencer.NewTransport(session, sink, nil)
	defer transport.Stop()

	opts := []api.Option{api.WithRenderOptions(render.Options{
		SampleRate: cfg.Audio.SampleRate,
		Tail:       cfg.Audio.Tail,
	})}
	if st, err := openStore(); err == nil {
		opts = append(opts, api.WithStore(st, name))
	}
	srv := api.New(session, transport, opts...)

	addr := cfg.Server.Listen
	if listen != "" {
		addr = listen
	}
	ctx, cancel := signalContext()
	defer cancel()
	fmt.Printf("serving %s on http://%s/api/v1\n", name, addr)
	err = srv.Run(ctx, addr)
	session.Flush()
	return err
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := midi.ListPorts()
	if err != nil {
		return err
	}
	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ports.In {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range ports.Out {
		fmt.Printf("  %d: %s\n", i, p)
	}
	fmt.Println("\n=== Drum Kits ===")
	for _, name := range midi.KitNames() {
		fmt.Printf("  %-5s %s\n", name, midi.Kit(name).Name)
	}
	return nil
}
