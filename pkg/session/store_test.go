package session

import (
	"context"
	"testing"
	"time"

	"github.com/arnavshah/timetable-wizard-go/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(ttl time.Duration) (*Store, *clock) {
	clk := &clock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	s := NewStore(Options{TTL: ttl})
	s.now = clk.now
	return s, clk
}

func TestCreateGetDelete(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	sess := s.Create("school-a")
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, int(sess.Wizard.CurrentStep()))
	assert.Len(t, sess.Chat.Transcript(), 1)

	got, err := s.Get(sess.ID, "school-a")
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = s.Get(sess.ID, "school-b")
	assert.True(t, errs.Is(err, errs.KindNotFound), "other owners cannot see the session")
	assert.True(t, errs.Is(s.Delete(sess.ID, "school-b"), errs.KindNotFound))

	require.NoError(t, s.Delete(sess.ID, "school-a"))
	assert.Zero(t, s.Len())
	_, err = s.Get(sess.ID, "school-a")
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestSweep_EvictsIdleSessions(t *testing.T) {
	s, clk := newTestStore(time.Hour)
	old := s.Create("a")
	clk.t = clk.t.Add(45 * time.Minute)
	fresh := s.Create("a")

	clk.t = clk.t.Add(30 * time.Minute)
	assert.Equal(t, 1, s.Sweep())

	_, err := s.Get(old.ID, "a")
	assert.True(t, errs.Is(err, errs.KindNotFound))
	_, err = s.Get(fresh.ID, "a")
	assert.NoError(t, err)
}

func TestSweep_GetKeepsSessionAlive(t *testing.T) {
	s, clk := newTestStore(time.Hour)
	sess := s.Create("a")

	clk.t = clk.t.Add(50 * time.Minute)
	_, err := s.Get(sess.ID, "a")
	require.NoError(t, err)
	clk.t = clk.t.Add(50 * time.Minute)

	assert.Zero(t, s.Sweep())
	assert.True(t, sess.LastSeen().Equal(clk.t.Add(-50*time.Minute)))
}

func TestSweep_ZeroTTLKeepsEverything(t *testing.T) {
	s, clk := newTestStore(0)
	s.Create("a")
	clk.t = clk.t.Add(1000 * time.Hour)
	assert.Zero(t, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestRun_StopsWithContext(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCreate_EvictsExpiredSessions(t *testing.T) {
	s, clk := newTestStore(time.Hour)
	stale := s.Create("a")
	clk.t = clk.t.Add(2 * time.Hour)

	fresh := s.Create("b")

	assert.Equal(t, 1, s.Len())
	_, err := s.Get(stale.ID, "a")
	assert.True(t, errs.Is(err, errs.KindNotFound))
	_, err = s.Get(fresh.ID, "b")
	assert.NoError(t, err)
}

func TestRun_NonPositiveIntervalReturns(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	assert.NotPanics(t, func() { s.Run(context.Background(), 0) })
	assert.NotPanics(t, func() { s.Run(context.Background(), -time.Second) })
}
