package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SafeSignal/internal/alerts"
	"SafeSignal/internal/dispatch"
	"SafeSignal/internal/match"
	"SafeSignal/internal/presence"
	"SafeSignal/internal/realtime"
	"SafeSignal/internal/session"
	"SafeSignal/pkg/cache"
	"SafeSignal/pkg/config"
	"SafeSignal/pkg/notification"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Handlers) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.GlobalConfig = &config.Config{APIPrefix: "/api/v1"}

	store := alerts.NewStore()
	registry := presence.NewRegistry()
	matcher := match.NewMatcher(registry, 0)
	hub := realtime.NewHub(store)
	subs := dispatch.NewSubscriptionStore()
	dispatcher := dispatch.NewDispatcher(matcher, subs,
		notification.NewPusher(nil), cache.NewGoCache(cache.LocalConfig{}))
	sessions := session.NewManager(store, hub)

	h := NewHandlers(store, registry, matcher, dispatcher, subs, sessions, hub, nil)
	engine := gin.New()
	h.Register(engine)
	engine.GET("/healthz", h.HealthCheck)
	return engine, h
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func startAlert(t *testing.T, engine *gin.Engine) string {
	t.Helper()
	w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/start", gin.H{
		"user_id": "victim_1",
		"type":    "sos",
		"lat":     40.7128,
		"lng":     -74.0060,
		"message": "help",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.ID)
	return body.Data.ID
}

func TestStartEmergency(t *testing.T) {
	engine, _ := newTestRouter(t)

	t.Run("creates active alert", func(t *testing.T) {
		id := startAlert(t, engine)

		w := doJSON(t, engine, http.MethodGet, "/api/v1/emergency/"+id, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"active"`)
	})

	t.Run("rejects bad coordinates", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/start", gin.H{
			"user_id": "victim_1",
			"type":    "sos",
			"lat":     120.0,
			"lng":     0.0,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/start", gin.H{
			"user_id": "victim_1",
			"type":    "earthquake",
			"lat":     0.0,
			"lng":     0.0,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAcceptConflictReturns409(t *testing.T) {
	engine, _ := newTestRouter(t)
	id := startAlert(t, engine)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/"+id+"/accept",
		gin.H{"responder_id": "resp_1"})
	require.Equal(t, http.StatusOK, w.Code)

	// 第二个 accept 输掉竞争
	w = doJSON(t, engine, http.MethodPost, "/api/v1/emergency/"+id+"/accept",
		gin.H{"responder_id": "resp_2"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResolveAndTerminalTransitions(t *testing.T) {
	engine, _ := newTestRouter(t)
	id := startAlert(t, engine)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/"+id+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 终态后的取消是非法迁移
	w = doJSON(t, engine, http.MethodPost, "/api/v1/emergency/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 未知警报
	w = doJSON(t, engine, http.MethodPost, "/api/v1/emergency/nope/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMatchEndpoint(t *testing.T) {
	engine, _ := newTestRouter(t)
	id := startAlert(t, engine)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/responders/location", gin.H{
		"responder_id":   "resp_1",
		"user_id":        "user_1",
		"lat":            40.7135,
		"lng":            -74.0065,
		"responder_type": "medical",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/emergency/"+id+"/matches?radius_km=1.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"responder_id":"resp_1"`)
	assert.Contains(t, w.Body.String(), `"severity":"critical"`)

	// 类型过滤
	w = doJSON(t, engine, http.MethodGet, "/api/v1/emergency/"+id+"/matches?responder_type=police", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "resp_1")
}

func TestResponderEndpoints(t *testing.T) {
	engine, h := newTestRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/responders/location", gin.H{
		"responder_id": "resp_1",
		"lat":          40.7,
		"lng":          -74.0,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.registry.Count())

	w = doJSON(t, engine, http.MethodPut, "/api/v1/responders/availability", gin.H{
		"responder_id": "resp_1",
		"available":    false,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// 不存在的响应者
	w = doJSON(t, engine, http.MethodPut, "/api/v1/responders/availability", gin.H{
		"responder_id": "ghost",
		"available":    true,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodDelete, "/api/v1/responders/location?responder_id=resp_1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, h.registry.Count())
}

func TestSubscriptionEndpoints(t *testing.T) {
	engine, h := newTestRouter(t)

	w := doJSON(t, engine, http.MethodPut, "/api/v1/notifications/subscription", gin.H{
		"user_id":      "u1",
		"subscription": gin.H{"endpoint": "https://push/u1"},
		"filters":      gin.H{"responder_types": []string{"medical"}, "radius_km": 2.0},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.subs.Count())

	// PUT 是替换语义
	w = doJSON(t, engine, http.MethodPut, "/api/v1/notifications/subscription", gin.H{
		"user_id":      "u1",
		"subscription": gin.H{"endpoint": "https://push/u1-new"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.subs.Count())

	w = doJSON(t, engine, http.MethodDelete, "/api/v1/notifications/subscription?user_id=u1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, h.subs.Count())
}

func TestSessionEndpoints(t *testing.T) {
	engine, _ := newTestRouter(t)
	id := startAlert(t, engine)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/"+id+"/accept",
		gin.H{"responder_id": "resp_1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/api/v1/session/resp_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"en_route"`)

	// en_route 不能直接 finish
	w = doJSON(t, engine, http.MethodPost, "/api/v1/session/resp_1/finish", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/v1/session/resp_1/arrive", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/api/v1/session/resp_1/finish", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 会话结束后再查是 404
	w = doJSON(t, engine, http.MethodGet, "/api/v1/session/resp_1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 警报随 finish 变为 resolved
	w = doJSON(t, engine, http.MethodGet, "/api/v1/emergency/"+id, nil)
	assert.Contains(t, w.Body.String(), `"status":"resolved"`)
}

func TestHealthCheck(t *testing.T) {
	engine, _ := newTestRouter(t)
	startAlert(t, engine)

	w := doJSON(t, engine, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"active_alerts":1`)
}

func TestAlertStreamRejectsUnknownAlert(t *testing.T) {
	engine, _ := newTestRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/api/v1/stream/alerts/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertStreamTerminalAlertClosesImmediately(t *testing.T) {
	engine, _ := newTestRouter(t)
	id := startAlert(t, engine)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/"+id+"/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// 终态警报：快照 + closed，连接立即收尾而不是挂在空主题上
	w = doJSON(t, engine, http.MethodGet, "/api/v1/stream/alerts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event: snapshot")
	assert.Contains(t, body, `"status":"resolved"`)
	assert.Contains(t, body, "event: closed")
}

func TestAlertWebSocketTerminalAlertClosesImmediately(t *testing.T) {
	engine, _ := newTestRouter(t)
	id := startAlert(t, engine)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/emergency/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	srv := httptest.NewServer(engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/alerts/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "snapshot", first.Type)
	assert.Contains(t, string(first.Data), `"status":"cancelled"`)

	// 快照之后服务端正常关闭
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
