// Package session keeps the per-chat conversation state of the bot: which
// workflow is waiting for images and which batch can be stopped.
package session

import (
	"sync"
	"time"

	"gelap-studio/internal/batch"
)

type Mode string

const (
	ModeIdle         Mode = ""
	ModeProduct      Mode = "product"
	ModeMockupTarget Mode = "mockup_target"
	ModeMockupDesign Mode = "mockup_design"
	ModeCharacter    Mode = "character"
	ModeTool         Mode = "tool"
)

type Session struct {
	ChatID   int64
	Username string
	Mode     Mode
	// Args are the command arguments captured when Mode was entered.
	Args string
	// Workflow is the last workflow that produced a result; /save uses it.
	Workflow     string
	Running      bool
	LastActivity time.Time
}

type Options struct {
	// IdleTimeout drops a waiting mode that saw no activity for this long.
	IdleTimeout time.Duration
	Now         func() time.Time
}

type Store struct {
	mu       sync.Mutex
	sessions map[int64]*entry
	idle     time.Duration
	now      func() time.Time
}

type entry struct {
	Session
	stop *batch.StopToken
}

func NewStore(opts Options) *Store {
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		sessions: make(map[int64]*entry),
		idle:     idle,
		now:      now,
	}
}

func (s *Store) Get(chatID int64, username string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(chatID, username).Session
}

// Update applies fn and returns the new state.
func (s *Store) Update(chatID int64, username string, fn func(*Session)) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(chatID, username)
	fn(&e.Session)
	e.ChatID = chatID
	e.Running = e.stop != nil
	e.LastActivity = s.now()
	return e.Session
}

// Clear leaves any waiting mode. A running batch keeps running.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[chatID]; ok {
		e.Mode = ModeIdle
		e.Args = ""
		e.LastActivity = s.now()
	}
}

// BeginRun registers a batch for the chat. It returns false when one is
// already running there.
func (s *Store) BeginRun(chatID int64) (*batch.StopToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.getOrCreateLocked(chatID, "")
	if e.stop != nil {
		return nil, false
	}
	e.stop = batch.NewStopToken()
	e.Running = true
	return e.stop, true
}

func (s *Store) EndRun(chatID int64, tok *batch.StopToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[chatID]; ok && e.stop == tok {
		e.stop = nil
		e.Running = false
	}
}

// Stop signals the chat's running batch. It reports whether there was one.
func (s *Store) Stop(chatID int64) bool {
	s.mu.Lock()
	e, ok := s.sessions[chatID]
	var tok *batch.StopToken
	if ok {
		tok = e.stop
	}
	s.mu.Unlock()

	if tok == nil {
		return false
	}
	tok.Stop()
	return true
}

// StopAll signals every running batch, e.g. on shutdown.
func (s *Store) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sessions {
		if e.stop != nil {
			e.stop.Stop()
		}
	}
}

func (s *Store) getOrCreateLocked(chatID int64, username string) *entry {
	now := s.now()
	if e, ok := s.sessions[chatID]; ok {
		if e.Username == "" && username != "" {
			e.Username = username
		}
		if e.Mode != ModeIdle && now.Sub(e.LastActivity) > s.idle {
			e.Mode = ModeIdle
			e.Args = ""
		}
		return e
	}

	e := &entry{Session: Session{
		ChatID:       chatID,
		Username:     username,
		LastActivity: now,
	}}
	s.sessions[chatID] = e
	return e
}
