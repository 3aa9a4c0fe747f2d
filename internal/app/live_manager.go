package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makanmate/makanmate/internal/live"
)

// ErrLiveActive is returned by [LiveManager.Start] while a session is open.
var ErrLiveActive = errors.New("app: a live session is already active")

// ErrNoLiveSession is returned by [LiveManager.Stop] when nothing is running.
var ErrNoLiveSession = errors.New("app: no active live session")

// LiveInfo holds metadata about the active live session.
type LiveInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session opened.
	StartedAt time.Time

	// Voice is the prebuilt voice in use.
	Voice string
}

// LiveManager runs at most one live voice session at a time.
// All exported methods are safe for concurrent use.
type LiveManager struct {
	app *App

	mu       sync.Mutex
	starting bool
	session  *live.Session
	info     LiveInfo
	lastErr  error
}

func newLiveManager(a *App) *LiveManager {
	return &LiveManager{app: a}
}

// Start connects a new live session that reports to o. It blocks until the
// session is open or the connection fails. A session that ends on its own
// (remote close or transport error) frees the slot automatically.
//
// Returns [ErrLiveActive] if a session is already open or connecting.
func (m *LiveManager) Start(ctx context.Context, o live.Observer) (*live.Session, error) {
	a := m.app
	if a.providers.Live == nil {
		return nil, fmt.Errorf("%w: live", ErrNotConfigured)
	}
	if a.devices == nil {
		return nil, fmt.Errorf("%w: audio devices", ErrNotConfigured)
	}

	m.mu.Lock()
	if m.starting || m.session != nil {
		id := m.info.SessionID
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (id=%s)", ErrLiveActive, id)
	}
	s := live.New(a.providers.Live, a.devices, a.liveOptions(o)...)
	info := LiveInfo{
		SessionID: "live-" + uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Voice:     a.cfg.Assistant.Voice,
	}
	m.starting = true
	m.session = s
	m.info = info
	m.mu.Unlock()

	err := s.Connect(ctx)

	m.mu.Lock()
	m.starting = false
	if err != nil {
		if m.session == s {
			m.session = nil
			m.info = LiveInfo{}
		}
		if s.State() != live.StateClosed {
			m.lastErr = err
		}
		m.mu.Unlock()
		return nil, err
	}
	m.lastErr = nil
	done := s.Done()
	m.mu.Unlock()

	go m.reap(s, done)

	a.log.Info("live session started", "session_id", info.SessionID, "voice", info.Voice)
	return s, nil
}

// reap clears the slot once s has shut down.
func (m *LiveManager) reap(s *live.Session, done <-chan struct{}) {
	<-done
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != s {
		return
	}
	if err := s.Err(); err != nil {
		m.lastErr = err
	}
	m.app.log.Info("live session ended", "session_id", m.info.SessionID, "state", s.State().String())
	m.session = nil
	m.info = LiveInfo{}
}

// Stop ends the active session and waits for it to shut down.
//
// Returns [ErrNoLiveSession] if no session is active.
func (m *LiveManager) Stop() error {
	m.mu.Lock()
	s := m.session
	id := m.info.SessionID
	m.mu.Unlock()

	if s == nil {
		return ErrNoLiveSession
	}
	if err := s.Disconnect(); err != nil {
		return fmt.Errorf("app: stop live session %s: %w", id, err)
	}

	m.mu.Lock()
	if m.session == s {
		m.session = nil
		m.info = LiveInfo{}
	}
	m.mu.Unlock()
	m.app.log.Info("live session stopped", "session_id", id)
	return nil
}

// IsActive reports whether a session is open or connecting.
func (m *LiveManager) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Info returns metadata about the active session, or the zero value.
func (m *LiveManager) Info() LiveInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// check fails while the most recent session ended in error. It clears once a
// later session opens.
func (m *LiveManager) check(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
