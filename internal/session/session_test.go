package session

import (
	"context"
	"sync"
	"testing"

	"SafeSignal/internal/alerts"
	"SafeSignal/internal/models"
	"SafeSignal/internal/realtime"
	"SafeSignal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T) (*Manager, *alerts.Store, models.Alert) {
	t.Helper()
	store := alerts.NewStore()
	hub := realtime.NewHub(store)
	m := NewManager(store, hub)

	a, err := store.Create(context.Background(), models.Alert{
		UserID:  "victim_1",
		Type:    models.AlertTypeSOS,
		Lat:     40.7128,
		Lng:     -74.0060,
		Message: "help",
	})
	require.NoError(t, err)
	return m, store, a
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	m, store, a := newFixture(t)

	s, err := m.Accept(ctx, a.ID, "resp_1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnRoute, s.Status())
	assert.Equal(t, 1, m.Count())

	got, _ := store.Get(a.ID)
	assert.Equal(t, models.AlertStatusResponding, got.Status)
	assert.Equal(t, "resp_1", got.AcceptedBy)

	require.NoError(t, s.Arrive(ctx))
	assert.Equal(t, models.SessionOnScene, s.Status())

	require.NoError(t, s.Finish(ctx, m))
	assert.Equal(t, models.SessionComplete, s.Status())
	assert.Equal(t, 0, m.Count())

	got, _ = store.Get(a.ID)
	assert.Equal(t, models.AlertStatusResolved, got.Status)
}

func TestSessionStrictForwardOnly(t *testing.T) {
	ctx := context.Background()
	m, _, a := newFixture(t)

	s, err := m.Accept(ctx, a.ID, "resp_1")
	require.NoError(t, err)

	// en_route 不能直接 finish
	err = s.Finish(ctx, m)
	assert.True(t, errors.IsInvalidTransition(err))
	assert.Equal(t, models.SessionEnRoute, s.Status())

	require.NoError(t, s.Arrive(ctx))

	// on_scene 不能再 arrive
	err = s.Arrive(ctx)
	assert.True(t, errors.IsInvalidTransition(err))
	assert.Equal(t, models.SessionOnScene, s.Status())
}

func TestAcceptConflictLeavesNoSession(t *testing.T) {
	ctx := context.Background()
	m, _, a := newFixture(t)

	_, err := m.Accept(ctx, a.ID, "winner")
	require.NoError(t, err)

	// 输家拿到 Conflict，且没有会话残留
	_, err = m.Accept(ctx, a.ID, "loser")
	assert.True(t, errors.IsConflict(err))
	_, ok := m.Get("loser")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Count())
}

func TestConcurrentAcceptOneWinner(t *testing.T) {
	ctx := context.Background()
	m, _, a := newFixture(t)

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan *Session, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			responder := "resp_" + string(rune('a'+id))
			if s, err := m.Accept(ctx, a.ID, responder); err == nil {
				wins <- s
			} else {
				assert.True(t, errors.IsConflict(err))
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	assert.Equal(t, 1, len(wins))
	assert.Equal(t, 1, m.Count())
}

func TestOneSessionPerResponder(t *testing.T) {
	ctx := context.Background()
	m, store, a := newFixture(t)

	other, err := store.Create(ctx, models.Alert{
		UserID: "victim_2",
		Type:   models.AlertTypeFire,
		Lat:    40.7300,
		Lng:    -74.0000,
	})
	require.NoError(t, err)

	_, err = m.Accept(ctx, a.ID, "resp_1")
	require.NoError(t, err)

	_, err = m.Accept(ctx, other.ID, "resp_1")
	assert.True(t, errors.IsConflict(err))
}

func TestSuspendResume(t *testing.T) {
	ctx := context.Background()
	m, store, a := newFixture(t)

	s, err := m.Accept(ctx, a.ID, "resp_1")
	require.NoError(t, err)

	s.Suspend()
	assert.True(t, s.Suspended())

	// 挂起期间状态不回退
	assert.Equal(t, models.SessionEnRoute, s.Status())

	snap, err := s.Resume(ctx)
	require.NoError(t, err)
	assert.False(t, s.Suspended())
	assert.Equal(t, a.ID, snap.Alert.ID)
	assert.Equal(t, models.AlertStatusResponding, snap.Alert.Status)

	// 断线期间警报被取消：Resume 报连接性错误
	s.Suspend()
	_, err = store.Cancel(ctx, a.ID)
	require.NoError(t, err)

	_, err = s.Resume(ctx)
	assert.True(t, errors.IsConnectivity(err))
}

func TestAbandonReleasesSession(t *testing.T) {
	ctx := context.Background()
	m, store, a := newFixture(t)

	s, err := m.Accept(ctx, a.ID, "resp_1")
	require.NoError(t, err)

	s.Abandon(ctx, m)
	assert.Equal(t, 0, m.Count())

	// 警报保持 responding，不回退 active
	got, _ := store.Get(a.ID)
	assert.Equal(t, models.AlertStatusResponding, got.Status)
}

func TestFinishAfterVictimCancel(t *testing.T) {
	ctx := context.Background()
	m, store, a := newFixture(t)

	s, err := m.Accept(ctx, a.ID, "resp_1")
	require.NoError(t, err)
	require.NoError(t, s.Arrive(ctx))

	// 受害者先取消；Finish 仍能完成会话收尾
	_, err = store.Cancel(ctx, a.ID)
	require.NoError(t, err)

	require.NoError(t, s.Finish(ctx, m))
	assert.Equal(t, models.SessionComplete, s.Status())

	got, _ := store.Get(a.ID)
	assert.Equal(t, models.AlertStatusCancelled, got.Status)
}
