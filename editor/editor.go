package editor

import (
	"fmt"
	"imagedesk/core"
	"imagedesk/gallery"
	"imagedesk/upload"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Collaborators are the outside services an editor talks to. Any of them may
// be nil; the matching features are then unavailable.
type Collaborators struct {
	Images   gallery.Source
	Pixels   PixelSource
	Uploader *upload.Uploader
}

// Editor is one named editor instance, such as the cover picker of a
// proposal. It holds at most one open session.
type Editor struct {
	name     string
	collab   Collaborators
	defaults Options
	keyboard *Keyboard

	mu      sync.Mutex
	current *Session
}

func NewEditor(name string, collab Collaborators, defaults Options) *Editor {
	return &Editor{
		name:     name,
		collab:   collab,
		defaults: defaults.Merge(DefaultOptions()),
		keyboard: NewKeyboard(),
	}
}

func (e *Editor) Name() string { return e.name }

// Open starts a fresh session for owner that exports at target size. A
// session still open on this editor is discarded and resolves with nil.
func (e *Editor) Open(owner core.Owner, target core.Target, opts Options) (*Session, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	opts = opts.Merge(e.defaults)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Format, _ = normalizeFormat(opts.Format)

	s := newSession(e.name, owner, target, opts, e.collab)
	s.unlisten = e.keyboard.Listen(s.HandleKey)

	e.mu.Lock()
	prev := e.current
	e.current = s
	e.mu.Unlock()

	if prev != nil {
		prev.discard()
	}
	logrus.WithFields(logrus.Fields{
		"editor":     e.name,
		"session_id": s.ID(),
		"owner_id":   owner.OwnerID,
		"target":     fmt.Sprintf("%dx%d", target.Width, target.Height),
	}).Info("Editor opened")
	return s, nil
}

// Current returns the most recently opened session, open or not.
func (e *Editor) Current() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// HandleKey forwards a key press to the listeners of this instance only.
func (e *Editor) HandleKey(ev KeyEvent) bool {
	return e.keyboard.Dispatch(ev)
}

func (e *Editor) Keyboard() *Keyboard {
	return e.keyboard
}

// Manager hands out independent editor instances by name.
type Manager struct {
	collab   Collaborators
	defaults Options
	presets  Presets

	mu      sync.Mutex
	editors map[string]*Editor
}

func NewManager(collab Collaborators, defaults Options) *Manager {
	return &Manager{collab: collab, defaults: defaults, editors: map[string]*Editor{}}
}

// SetPresets installs per-instance defaults. Instances created earlier keep
// the defaults they were created with.
func (m *Manager) SetPresets(p Presets) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presets = p
}

// Editor returns the instance called name, creating it on first use.
func (m *Manager) Editor(name string) *Editor {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.editors[name]
	if !ok {
		e = NewEditor(name, m.collab, m.presets[name].Merge(m.defaults))
		m.editors[name] = e
	}
	return e
}

// Session finds the current session of any instance by id.
func (m *Manager) Session(id string) (*Session, error) {
	m.mu.Lock()
	editors := make([]*Editor, 0, len(m.editors))
	for _, e := range m.editors {
		editors = append(editors, e)
	}
	m.mu.Unlock()

	for _, e := range editors {
		if s := e.Current(); s != nil && s.ID() == id {
			return s, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.editors))
	for name := range m.editors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
