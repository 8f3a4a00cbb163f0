package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPusherWithoutClient(t *testing.T) {
	p := NewPusher(nil)
	err := p.Push(context.Background(), "https://push/x", PushPayload{})
	assert.Error(t, err)
}

func TestLogPushClientDelivers(t *testing.T) {
	p := NewPusher(LogPushClient{})
	err := p.Push(context.Background(), "https://push/x", PushPayload{
		EmergencyID: "alert_1",
		Title:       "Alert in your area: sos",
		Tag:         "emergency-alert_1",
	})
	assert.NoError(t, err)
}

func TestNewClientSelection(t *testing.T) {
	assert.NotNil(t, NewClient("log"))
	assert.NotNil(t, NewClient(""))
	assert.Nil(t, NewClient("none"))
}
