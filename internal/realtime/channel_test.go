package realtime

import (
	"testing"

	"SafeSignal/internal/models"
	"SafeSignal/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAlerts struct {
	alerts map[string]models.Alert
}

func (s *stubAlerts) Get(alertID string) (models.Alert, error) {
	a, ok := s.alerts[alertID]
	if !ok {
		return models.Alert{}, errors.NotFound("alert %s not found", alertID)
	}
	return a, nil
}

func newStubAlerts() *stubAlerts {
	return &stubAlerts{alerts: map[string]models.Alert{
		"alert_1": {
			ID:      "alert_1",
			Type:    models.AlertTypeSOS,
			Status:  models.AlertStatusActive,
			Version: 3,
		},
	}}
}

func drain(sub *Subscription) []Event {
	var got []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return got
			}
			got = append(got, ev)
		default:
			return got
		}
	}
}

func TestHubPublishOrdering(t *testing.T) {
	h := NewHub(newStubAlerts())
	sub := h.Subscribe("alert_1")
	defer sub.Close()

	h.Join("alert_1", "resp_1")
	h.SetResponderStatus("alert_1", "resp_1", models.SessionEnRoute)
	h.PublishAlertUpdated(models.Alert{ID: "alert_1", Status: models.AlertStatusResponding, Version: 1})
	h.Leave("alert_1", "resp_1")

	got := drain(sub)
	require.Len(t, got, 4)

	// 同一主题内 seq 单调递增，事件顺序与发布顺序一致
	assert.Equal(t, EventResponderJoined, got[0].Type)
	assert.Equal(t, EventResponderStatus, got[1].Type)
	assert.Equal(t, EventAlertUpdated, got[2].Type)
	assert.Equal(t, EventResponderLeft, got[3].Type)
	for i, ev := range got {
		assert.Equal(t, int64(i+1), ev.Seq)
	}

	assert.Equal(t, 1, got[0].Responder.Count)
	assert.Equal(t, models.SessionEnRoute, got[1].Responder.Status)
	assert.Equal(t, models.AlertStatusResponding, got[2].AlertUpdated.Status)
	assert.Equal(t, int64(1), got[2].AlertUpdated.Version)
	assert.Equal(t, 0, got[3].Responder.Count)
}

func TestHubTaggedPayloads(t *testing.T) {
	h := NewHub(newStubAlerts())
	sub := h.Subscribe("alert_1")
	defer sub.Close()

	h.PublishAlertUpdated(models.Alert{ID: "alert_1", Status: models.AlertStatusResolved, Version: 2})
	h.Join("alert_1", "resp_1")

	got := drain(sub)
	require.Len(t, got, 2)

	// 每条事件只有对应 Type 的负载非空
	assert.NotNil(t, got[0].AlertUpdated)
	assert.Nil(t, got[0].Responder)
	assert.Nil(t, got[1].AlertUpdated)
	assert.NotNil(t, got[1].Responder)
}

func TestHubSlowSubscriberDropsAndLags(t *testing.T) {
	h := NewHub(newStubAlerts(), WithBufferSize(2))
	sub := h.Subscribe("alert_1")
	defer sub.Close()

	// 不消费，超出缓冲的事件被丢弃
	for i := 0; i < 5; i++ {
		h.Join("alert_1", "resp_"+string(rune('a'+i)))
	}

	assert.True(t, sub.Lagged())
	got := drain(sub)
	assert.Len(t, got, 2)

	sub.ClearLagged()
	assert.False(t, sub.Lagged())
}

func TestHubSnapshot(t *testing.T) {
	h := NewHub(newStubAlerts())
	h.Join("alert_1", "resp_1")
	h.Join("alert_1", "resp_2")

	snap, err := h.Snapshot("alert_1")
	require.NoError(t, err)
	assert.Equal(t, "alert_1", snap.Alert.ID)
	assert.Equal(t, int64(3), snap.Alert.Version)
	assert.Equal(t, 2, snap.ResponderCount)
	assert.Equal(t, int64(2), snap.Seq)

	_, err = h.Snapshot("missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestHubTopicIsolation(t *testing.T) {
	src := newStubAlerts()
	src.alerts["alert_2"] = models.Alert{ID: "alert_2", Status: models.AlertStatusActive}

	h := NewHub(src)
	sub1 := h.Subscribe("alert_1")
	sub2 := h.Subscribe("alert_2")
	defer sub1.Close()
	defer sub2.Close()

	h.Join("alert_1", "resp_1")

	assert.Len(t, drain(sub1), 1)
	assert.Empty(t, drain(sub2))
	assert.Equal(t, 0, h.ResponderCount("alert_2"))
}

func TestHubCloseTopic(t *testing.T) {
	h := NewHub(newStubAlerts())
	sub := h.Subscribe("alert_1")

	h.PublishAlertUpdated(models.Alert{ID: "alert_1", Status: models.AlertStatusResolved, Version: 1})
	h.CloseTopic("alert_1")

	// 关闭后原订阅不再收到任何事件
	h.Join("alert_1", "late")

	events := make([]Event, 0)
	for ev := range sub.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.Equal(t, EventAlertUpdated, events[0].Type)

	// Close 可重复调用
	sub.Close()
}

func TestSubscriptionCloseIdempotent(t *testing.T) {
	h := NewHub(newStubAlerts())
	sub := h.Subscribe("alert_1")
	sub.Close()
	sub.Close()

	_, open := <-sub.Events()
	assert.False(t, open)
}
