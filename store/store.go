// Package store keeps project documents on disk, one directory per project
// holding timestamped saves.
package store

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"beatseq/debug"
	"beatseq/sequencer"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

const (
	timeLayout = "2006-01-02_15-04-05"
	ext        = ".yaml"
)

var (
	ErrNoSaves       = errors.New("project has no saves")
	ErrInvalidName   = errors.New("invalid name")
	ErrProjectExists = errors.New("project already exists")
)

// SaveInfo describes one save file
type SaveInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"`
}

// Store is a directory of projects.
type Store struct {
	root string
	now  func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for save timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New opens a store rooted at dir. The directory is created on first save.
func New(dir string, opts ...Option) *Store {
	s := &Store{root: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultDir returns ~/.config/beatseq/projects
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "beatseq", "projects"), nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) projectDir(project string) (string, error) {
	name := sanitizeFilename(project)
	if name == "" {
		return "", fault.Wrap(ErrInvalidName, ftag.With(sequencer.TagInvalid), fmsg.WithDesc("project "+project, "Project names need at least one letter or digit."))
	}
	return filepath.Join(s.root, name), nil
}

// ListProjects returns project names, sorted
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// CreateProject makes an empty project directory
func (s *Store) CreateProject(project string) error {
	dir, err := s.projectDir(project)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		return fault.Wrap(ErrProjectExists, ftag.With(sequencer.TagConflict), fmsg.With(project))
	}
	return os.MkdirAll(dir, 0755)
}

// ListSaves returns a project's saves, newest first
func (s *Store) ListSaves(project string) ([]SaveInfo, error) {
	dir, err := s.projectDir(project)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Wrap(err, ftag.With(sequencer.TagNotFound), fmsg.With("project "+project))
		}
		return nil, err
	}

	var saves []SaveInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		saves = append(saves, info)
	}
	slices.SortFunc(saves, func(a, b SaveInfo) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(b.Filename, a.Filename)
	})
	return saves, nil
}

// Save writes p as a new timestamped save. An empty label leaves the save
// unnamed.
func (s *Store) Save(project string, p *sequencer.Project, label string) (SaveInfo, error) {
	dir, err := s.projectDir(project)
	if err != nil {
		return SaveInfo{}, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return SaveInfo{}, err
	}

	data, err := sequencer.SerializeProject(p)
	if err != nil {
		return SaveInfo{}, err
	}

	ts := s.now().Truncate(time.Second)
	name := sanitizeFilename(label)
	filename := buildFilename(ts, name)
	// Two saves in the same second: bump the timestamp.
	for {
		if _, err := os.Stat(filepath.Join(dir, filename)); os.IsNotExist(err) {
			break
		}
		ts = ts.Add(time.Second)
		filename = buildFilename(ts, name)
	}

	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return SaveInfo{}, err
	}
	debug.Info("store", "saved %s/%s", project, filename)
	return SaveInfo{Filename: filename, Timestamp: ts, Name: name}, nil
}

// Load reads one save. An empty filename loads the newest.
func (s *Store) Load(project, filename string) (*sequencer.Project, error) {
	if filename == "" {
		return s.LoadLatest(project)
	}
	path, err := s.savePath(project, filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Wrap(err, ftag.With(sequencer.TagNotFound), fmsg.With("save "+filename))
		}
		return nil, err
	}
	return sequencer.LoadProject(data)
}

// LoadLatest reads a project's newest save
func (s *Store) LoadLatest(project string) (*sequencer.Project, error) {
	saves, err := s.ListSaves(project)
	if err != nil {
		return nil, err
	}
	if len(saves) == 0 {
		return nil, fault.Wrap(ErrNoSaves, ftag.With(sequencer.TagNotFound), fmsg.With(project))
	}
	return s.Load(project, saves[0].Filename)
}

// RenameSave changes a save's name, keeping its timestamp. An empty name
// removes it.
func (s *Store) RenameSave(project, filename, name string) (SaveInfo, error) {
	path, err := s.savePath(project, filename)
	if err != nil {
		return SaveInfo{}, err
	}
	info, ok := parseFilename(filename)
	if !ok {
		return SaveInfo{}, fault.Wrap(ErrInvalidName, ftag.With(sequencer.TagInvalid), fmsg.With("save "+filename))
	}
	info.Name = sanitizeFilename(name)
	info.Filename = buildFilename(info.Timestamp, info.Name)
	if err := os.Rename(path, filepath.Join(filepath.Dir(path), info.Filename)); err != nil {
		return SaveInfo{}, err
	}
	return info, nil
}

// DeleteSave removes one save
func (s *Store) DeleteSave(project, filename string) error {
	path, err := s.savePath(project, filename)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// RenameProject moves a project directory
func (s *Store) RenameProject(oldName, newName string) error {
	from, err := s.projectDir(oldName)
	if err != nil {
		return err
	}
	to, err := s.projectDir(newName)
	if err != nil {
		return err
	}
	if _, err := os.Stat(to); err == nil {
		return fault.Wrap(ErrProjectExists, ftag.With(sequencer.TagConflict), fmsg.With(newName))
	}
	return os.Rename(from, to)
}

// DeleteProject removes a project and all its saves
func (s *Store) DeleteProject(project string) error {
	dir, err := s.projectDir(project)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *Store) savePath(project, filename string) (string, error) {
	dir, err := s.projectDir(project)
	if err != nil {
		return "", err
	}
	if filename != filepath.Base(filename) || !strings.HasSuffix(filename, ext) {
		return "", fault.Wrap(ErrInvalidName, ftag.With(sequencer.TagInvalid), fmsg.With("save "+filename))
	}
	return filepath.Join(dir, filename), nil
}

func buildFilename(ts time.Time, name string) string {
	if name == "" {
		return ts.Format(timeLayout) + ext
	}
	return ts.Format(timeLayout) + "_" + name + ext
}

// parseFilename splits "2006-01-02_15-04-05[_name].yaml"
func parseFilename(filename string) (SaveInfo, bool) {
	base, ok := strings.CutSuffix(filename, ext)
	if !ok || len(base) < len(timeLayout) {
		return SaveInfo{}, false
	}
	ts, err := time.ParseInLocation(timeLayout, base[:len(timeLayout)], time.Local)
	if err != nil {
		return SaveInfo{}, false
	}
	rest := base[len(timeLayout):]
	if rest != "" && rest[0] != '_' {
		return SaveInfo{}, false
	}
	return SaveInfo{Filename: filename, Timestamp: ts, Name: strings.TrimPrefix(rest, "_")}, true
}

// sanitizeFilename keeps letters, digits, dashes and underscores; spaces
// become dashes.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-_")
}
