package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该检查Origin
		return true
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// AlertWebSocket 警报实时通道：先发快照，再按序推增量事件。
// 客户端收到 lagged 标记后应重新走一次快照对齐。
func (h *Handlers) AlertWebSocket(c *gin.Context) {
	alertID := c.Param("id")
	alert, err := h.store.Get(alertID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	// 终态警报的主题已经关闭，订阅会重建一个永不关闭的空主题。
	// 直接发快照再正常关闭连接。
	if alert.Status.Terminal() {
		if snap, err := h.hub.Snapshot(alertID); err == nil {
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			conn.WriteJSON(gin.H{"type": "snapshot", "data": snap})
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "alert closed"))
		return
	}

	sub := h.hub.Subscribe(alertID)
	defer sub.Close()

	if responderID := c.Query("responder_id"); responderID != "" {
		h.hub.Join(alertID, responderID)
		defer h.hub.Leave(alertID, responderID)
	}

	// 快照先行
	snap, err := h.hub.Snapshot(alertID)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(gin.H{"type": "snapshot", "data": snap}); err != nil {
		return
	}

	// 读协程只用来探测客户端关闭
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(wsPongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Errorf("WebSocket读取错误: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				// 主题随警报终结而关闭
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "alert closed"))
				return
			}
			payload, _ := json.Marshal(ev)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			if sub.Lagged() {
				// 丢过事件：让客户端重拉快照
				if snap, err := h.hub.Snapshot(alertID); err == nil {
					conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := conn.WriteJSON(gin.H{"type": "snapshot", "data": snap}); err != nil {
						return
					}
				}
				sub.ClearLagged()
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
