package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestUpdateAndClear(t *testing.T) {
	s := NewStore(Options{})
	st := s.Update(7, "sari", func(st *Session) {
		st.Mode = ModeProduct
		st.Args = "count=2"
	})
	assert.Equal(t, ModeProduct, st.Mode)
	assert.Equal(t, "sari", s.Get(7, "").Username)

	s.Clear(7)
	got := s.Get(7, "")
	assert.Equal(t, ModeIdle, got.Mode)
	assert.Empty(t, got.Args)
}

func TestIdleModeExpires(t *testing.T) {
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := NewStore(Options{IdleTimeout: time.Minute, Now: c.now})
	s.Update(1, "", func(st *Session) { st.Mode = ModeCharacter })

	c.t = c.t.Add(30 * time.Second)
	assert.Equal(t, ModeCharacter, s.Get(1, "").Mode)

	c.t = c.t.Add(2 * time.Minute)
	assert.Equal(t, ModeIdle, s.Get(1, "").Mode)
}

func TestRunLifecycle(t *testing.T) {
	s := NewStore(Options{})
	assert.False(t, s.Stop(3))

	tok, ok := s.BeginRun(3)
	require.True(t, ok)
	assert.True(t, s.Get(3, "").Running)

	_, again := s.BeginRun(3)
	assert.False(t, again)

	assert.True(t, s.Stop(3))
	assert.True(t, tok.Stopped())

	s.EndRun(3, tok)
	assert.False(t, s.Get(3, "").Running)
	assert.False(t, s.Stop(3))
}

func TestStopAll(t *testing.T) {
	s := NewStore(Options{})
	a, _ := s.BeginRun(1)
	b, _ := s.BeginRun(2)
	s.StopAll()
	assert.True(t, a.Stopped())
	assert.True(t, b.Stopped())
}
