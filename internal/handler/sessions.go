package handlers

import (
	"SafeSignal/pkg/errors"
	"SafeSignal/pkg/response"

	"github.com/gin-gonic/gin"
)

// GetSession 响应者当前会话状态
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("responderId"))
	if !ok {
		response.FailWithError(c, errors.NotFound("no active session for responder %s", c.Param("responderId")))
		return
	}
	response.Success(c, "get session", gin.H{
		"alert_id":  s.AlertID(),
		"status":    s.Status(),
		"suspended": s.Suspended(),
	})
}

// SessionArrive en_route -> on_scene
func (h *Handlers) SessionArrive(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("responderId"))
	if !ok {
		response.FailWithError(c, errors.NotFound("no active session"))
		return
	}
	if err := s.Arrive(c); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "responder on scene", gin.H{"status": s.Status()})
}

// SessionFinish on_scene -> complete，警报随之 resolved
func (h *Handlers) SessionFinish(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("responderId"))
	if !ok {
		response.FailWithError(c, errors.NotFound("no active session"))
		return
	}
	if err := s.Finish(c, h.sessions); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "session complete", gin.H{"status": s.Status()})
}

// SessionAbandon 中途退出，警报保持 responding
func (h *Handlers) SessionAbandon(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("responderId"))
	if !ok {
		response.FailWithError(c, errors.NotFound("no active session"))
		return
	}
	s.Abandon(c, h.sessions)
	response.Success(c, "session abandoned", nil)
}

// SessionResync 重连对齐：返回快照，恢复事件消费
func (h *Handlers) SessionResync(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("responderId"))
	if !ok {
		response.FailWithError(c, errors.NotFound("no active session"))
		return
	}
	snap, err := s.Resume(c)
	if err != nil {
		// 断线期间警报已终结：会话没有继续的意义，顺手销毁
		if errors.IsConnectivity(err) {
			s.Abandon(c, h.sessions)
		}
		response.FailWithError(c, err)
		return
	}
	response.Success(c, "session resynced", snap)
}
