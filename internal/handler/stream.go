package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const streamPingInterval = 30 * time.Second

// AlertStream 同一份事件流的 SSE 版本，给不方便开 WebSocket 的客户端
func (h *Handlers) AlertStream(c *gin.Context) {
	alertID := c.Param("id")
	alert, err := h.store.Get(alertID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	fmt.Fprintf(c.Writer, "retry: %d\n\n", 5000)

	// 终态警报不再订阅（主题已关闭，订阅会重建空主题），发快照后立即收尾
	if alert.Status.Terminal() {
		if snap, err := h.hub.Snapshot(alertID); err == nil {
			writeSSE(c, "snapshot", snap)
		}
		writeSSE(c, "closed", gin.H{"alert_id": alertID})
		flusher.Flush()
		return
	}

	sub := h.hub.Subscribe(alertID)
	defer sub.Close()

	// 快照先行
	snap, err := h.hub.Snapshot(alertID)
	if err != nil {
		return
	}
	writeSSE(c, "snapshot", snap)
	flusher.Flush()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			fmt.Fprintf(c.Writer, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		case ev, ok := <-sub.Events():
			if !ok {
				writeSSE(c, "closed", gin.H{"alert_id": alertID})
				flusher.Flush()
				return
			}
			writeSSE(c, string(ev.Type), ev)
			if sub.Lagged() {
				if snap, err := h.hub.Snapshot(alertID); err == nil {
					writeSSE(c, "snapshot", snap)
				}
				sub.ClearLagged()
			}
			flusher.Flush()
		}
	}
}

func writeSSE(c *gin.Context, event string, v interface{}) {
	b, _ := json.Marshal(v)
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
}
