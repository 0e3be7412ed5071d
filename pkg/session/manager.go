package session

import (
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/capview/capview/pkg/config"
	"github.com/capview/capview/util"
)

var segmentName = regexp.MustCompile(`^(.+)_(\d{4})\.jsonl$`)

// Manager tracks the open sessions of one data directory.
type Manager struct {
	mu       sync.Mutex
	cfg      *config.Config
	sessions map[string]*Session
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session with the given name, starting it if needed.
// An empty name always starts a fresh session with a generated name.
func (m *Manager) Open(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name != "" {
		if s, ok := m.sessions[name]; ok {
			return s, nil
		}
	}

	s, err := Open(m.cfg, name)
	if err != nil {
		return nil, err
	}
	m.sessions[s.Name()] = s
	return s, nil
}

// Get returns an open session by name.
func (m *Manager) Get(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}

// ListSessions discovers session names on disk by segment filename
// prefix, including sessions from earlier runs.
func (m *Manager) ListSessions() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(m.cfg.DataDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, f := range files {
		match := segmentName.FindStringSubmatch(filepath.Base(f))
		if match == nil || seen[match[1]] {
			continue
		}
		seen[match[1]] = true
		names = append(names, match[1])
	}
	sort.Strings(names)
	return names, nil
}

// CloseAll stops every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, s := range m.sessions {
		util.Debug("stopping session %s", name)
		if err := s.Stop(); err != nil {
			util.Warn("session %s: close failed: %v", name, err)
		}
		delete(m.sessions, name)
	}
}
