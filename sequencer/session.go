package sequencer

import (
	"errors"
	"sync"
	"sync/atomic"

	"beatseq/debug"
)

// errNoChange marks a command that validated but had nothing to do.
var errNoChange = errors.New("no change")

// Session is the single writer of a Project. Every command works on a fresh
// copy and swaps it in only when it succeeds, so readers holding a Snapshot
// never see a half-applied edit and a failed command leaves nothing behind.
type Session struct {
	mu       sync.Mutex
	project  *Project
	history  *History
	snapshot atomic.Pointer[Project]
	onChange func(*Project)
}

// NewSession takes ownership of p (a new project if nil) and records it as
// the first history entry.
func NewSession(p *Project, h *History) *Session {
	if p == nil {
		p = NewProject("Untitled")
	}
	if h == nil {
		h = NewHistory()
	}
	s := &Session{project: p, history: h}
	h.Reset(p, "Initial state")
	s.snapshot.Store(p)
	return s
}

// OnChange registers fn to be called with the new snapshot after every
// applied command, undo, redo, jump or load. fn runs on the caller's
// goroutine and must not call back into the session.
func (s *Session) OnChange(fn func(*Project)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns the current frozen project. It is shared; callers must
// treat it as read-only.
func (s *Session) Snapshot() *Project {
	return s.snapshot.Load()
}

// Project returns a private copy of the current project.
func (s *Session) Project() *Project {
	return s.Snapshot().Copy()
}

// History exposes the session's version history.
func (s *Session) History() *History {
	return s.history
}

// apply runs fn on a copy of the project. On success the copy becomes the
// project and a history commit is offered under label.
func (s *Session) apply(label string, fn func(p *Project) error) error {
	s.mu.Lock()
	next := s.project.Copy()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		debug.Log("session", "%s rejected: %v", label, err)
		return err
	}
	s.project = next
	s.snapshot.Store(next)
	s.history.Commit(next, label, true)
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(next)
	}
	return nil
}

// replay swaps in a project taken from history without committing it, so
// undo and redo never grow the history themselves.
func (s *Session) replay(fn func() (*Project, bool)) bool {
	s.mu.Lock()
	p, ok := fn()
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.project = p
	s.snapshot.Store(p)
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(p)
	}
	return true
}

// Load replaces the project and starts a fresh history.
func (s *Session) Load(p *Project) {
	s.replay(func() (*Project, bool) {
		s.history.Reset(p, "Loaded "+p.Name)
		return p, true
	})
}

// Undo returns false when there is nothing to undo.
func (s *Session) Undo() bool {
	return s.replay(s.history.Undo)
}

// Redo returns false when there is nothing to redo.
func (s *Session) Redo() bool {
	return s.replay(s.history.Redo)
}

func (s *Session) CanUndo() bool { return s.history.CanUndo() }
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// SaveVersion records a named checkpoint of the current project.
func (s *Session) SaveVersion(name, description string) Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		name = "Untitled version"
	}
	return s.history.SaveVersion(s.project, name, description)
}

// JumpToVersion restores the version with the given id or name.
func (s *Session) JumpToVersion(ref string) (Version, error) {
	var v Version
	var err error
	s.replay(func() (*Project, bool) {
		var p *Project
		p, v, err = s.history.JumpTo(ref)
		return p, err == nil
	})
	return v, err
}

// Versions lists history metadata oldest first with the current index.
func (s *Session) Versions() ([]Version, int) {
	return s.history.Versions()
}

// Flush finalizes a pending coalesced edit.
func (s *Session) Flush() {
	s.history.Flush()
}
