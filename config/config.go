package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"beatseq/sequencer"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"gopkg.in/yaml.v3"
)

// ProjectConfig holds defaults for new projects
type ProjectConfig struct {
	BPM             int     `yaml:"bpm"`
	StepsPerPattern int     `yaml:"stepsPerPattern"`
	GridDivision    int     `yaml:"gridDivision"`
}

// HistoryConfig tunes the undo history
type HistoryConfig struct {
	Size     int           `yaml:"size"`
	Debounce time.Duration `yaml:"debounce"`
}

// MIDIConfig defines the MIDI output and keyboard input
type MIDIConfig struct {
	Output      string `yaml:"output,omitempty"`
	BaseChannel uint8  `yaml:"baseChannel"`
	Kit         string `yaml:"kit"`
	Keyboard    string `yaml:"keyboard,omitempty"`
}

// AudioConfig sets offline render and playback output
type AudioConfig struct {
	SampleRate int           `yaml:"sampleRate"`
	Tail       time.Duration `yaml:"tail"`
}

// LogConfig points the debug log somewhere
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// ServerConfig is the HTTP API listener
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the main configuration structure
type Config struct {
	Project  ProjectConfig `yaml:"project"`
	History  HistoryConfig `yaml:"history"`
	MIDI     MIDIConfig    `yaml:"midi"`
	Audio    AudioConfig   `yaml:"audio"`
	Log      LogConfig     `yaml:"log"`
	Server   ServerConfig  `yaml:"server"`
	Projects string        `yaml:"projects,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Project: ProjectConfig{
			BPM:             sequencer.DefaultBPM,
			StepsPerPattern: sequencer.DefaultStepsPerPattern,
			GridDivision:    sequencer.DefaultGridDivision,
		},
		History: HistoryConfig{
			Size:     sequencer.DefaultMaxHistorySize,
			Debounce: sequencer.DefaultDebounce,
		},
		MIDI: MIDIConfig{
			Kit: "gm",
		},
		Audio: AudioConfig{
			SampleRate: 44100,
			Tail:       time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8080",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "beatseq"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path (the default path if empty), or returns
// defaults if not found. Keys missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return DefaultConfig(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a config document over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fault.Wrap(err, fmsg.WithDesc("parse config", "The config file is not valid YAML or has unknown keys."))
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize pulls out-of-range values back to something usable
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Project.BPM < sequencer.MinBPM || c.Project.BPM > sequencer.MaxBPM {
		c.Project.BPM = d.Project.BPM
	}
	if c.Project.StepsPerPattern < 1 || c.Project.StepsPerPattern > sequencer.MaxStepsPerPattern {
		c.Project.StepsPerPattern = d.Project.StepsPerPattern
	}
	if c.Project.GridDivision < 1 || c.Project.GridDivision > sequencer.MaxGridDivision {
		c.Project.GridDivision = d.Project.GridDivision
	}
	if c.History.Size < 2 {
		c.History.Size = d.History.Size
	}
	if c.History.Debounce < 0 {
		c.History.Debounce = 0
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = d.Audio.SampleRate
	}
	c.MIDI.BaseChannel %= 16
}

// NewProject creates an empty project using the configured defaults
func (c *Config) NewProject(name string) *sequencer.Project {
	p := sequencer.NewProject(name)
	p.BPM = c.Project.BPM
	p.StepsPerPattern = c.Project.StepsPerPattern
	p.GridDivision = c.Project.GridDivision
	return p
}

// HistoryOptions turns the history section into sequencer options
func (c *Config) HistoryOptions() []sequencer.HistoryOption {
	return []sequencer.HistoryOption{
		sequencer.WithMaxSize(c.History.Size),
		sequencer.WithDebounce(c.History.Debounce),
	}
}

// Save writes the config to path (the default path if empty)
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
