package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault/fmsg"
	"github.com/spf13/cobra"

	"beatseq/config"
	"beatseq/debug"
	"beatseq/sequencer"
	"beatseq/store"
)

var version = "dev"

var (
	configPath string
	debugLog   string
	logLevel   string
	projectDir string

	cfg *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if issue := fmsg.GetIssue(err); issue != "" {
			fmt.Fprintln(os.Stderr, issue)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beatseq",
	Short: "Multi-track beat sequencer",
	Long: `beatseq is a step and piano roll sequencer with undo history,
MIDI output, offline rendering and a terminal or web editor.

Examples:
  beatseq new groove --demo
  beatseq tui groove
  beatseq render groove --wav groove.wav --mid groove.mid
  beatseq play groove --loops 4
  beatseq serve groove --listen :8080`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { debug.Disable() },
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/beatseq/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&debugLog, "debug-log", "", "write the debug log to this file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug log level (debug, info, warn)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "projects", "", "project store directory")

	rootCmd.AddCommand(newCmd, infoCmd, renderCmd, playCmd, tuiCmd, serveCmd, portsCmd)
}

// setup loads the config and turns on logging; flags win over the file.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if debugLog != "" {
		cfg.Log.File = debugLog
	}
	if projectDir != "" {
		cfg.Projects = projectDir
	}

	if cfg.Log.File != "" {
		if cfg.Log.File == "-" {
			debug.EnableWriter(os.Stderr)
		} else if err := debug.Enable(cfg.Log.File); err != nil {
			return err
		}
		if err := debug.SetLevel(cfg.Log.Level); err != nil {
			return err
		}
	}
	debug.Log("cli", "%s %v", cmd.Name(), args)
	return nil
}

func openStore() (*store.Store, error) {
	dir := cfg.Projects
	if dir == "" {
		d, err := store.DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	return store.New(dir), nil
}

// loadProject reads a project file, or the newest save of a stored project.
// The returned name is the store project to write back to, empty for files.
func loadProject(ref string) (*sequencer.Project, string, error) {
	if isFile(ref) {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, "", err
		}
		p, err := sequencer.LoadProject(data)
		return p, "", err
	}
	st, err := openStore()
	if err != nil {
		return nil, "", err
	}
	p, err := st.LoadLatest(ref)
	return p, ref, err
}

func isFile(ref string) bool {
	if ext := filepath.Ext(ref); ext == ".yaml" || ext == ".yml" {
		return true
	}
	return strings.ContainsRune(ref, os.PathSeparator)
}

func newSession(p *sequencer.Project) *sequencer.Session {
	return sequencer.NewSession(p, sequencer.NewHistory(cfg.HistoryOptions()...))
}
