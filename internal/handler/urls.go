package handlers

import (
	"SafeSignal/internal/alerts"
	"SafeSignal/internal/dispatch"
	"SafeSignal/internal/match"
	"SafeSignal/internal/presence"
	"SafeSignal/internal/realtime"
	"SafeSignal/internal/session"
	"SafeSignal/internal/storage"
	"SafeSignal/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	store      *alerts.Store
	registry   *presence.Registry
	matcher    *match.Matcher
	dispatcher *dispatch.Dispatcher
	subs       *dispatch.SubscriptionStore
	sessions   *session.Manager
	hub        *realtime.Hub
	archive    *storage.Store // 可为 nil（无数据库部署）
}

func NewHandlers(
	store *alerts.Store,
	registry *presence.Registry,
	matcher *match.Matcher,
	dispatcher *dispatch.Dispatcher,
	subs *dispatch.SubscriptionStore,
	sessions *session.Manager,
	hub *realtime.Hub,
	archive *storage.Store,
) *Handlers {
	return &Handlers{
		store:      store,
		registry:   registry,
		matcher:    matcher,
		dispatcher: dispatcher,
		subs:       subs,
		sessions:   sessions,
		hub:        hub,
		archive:    archive,
	}
}

// Register 挂载业务路由；startGuards 只套在创建警报的入口上
func (h *Handlers) Register(engine *gin.Engine, startGuards ...gin.HandlerFunc) {
	r := engine.Group(config.GlobalConfig.APIPrefix)

	h.registerEmergencyRoutes(r, startGuards...)
	h.registerResponderRoutes(r)
	h.registerNotificationRoutes(r)
	h.registerSessionRoutes(r)
	h.registerRealtimeRoutes(r)
}

func (h *Handlers) registerEmergencyRoutes(r *gin.RouterGroup, startGuards ...gin.HandlerFunc) {
	emergency := r.Group("emergency")
	{
		start := append([]gin.HandlerFunc{}, startGuards...)
		start = append(start, h.StartEmergency)
		emergency.POST("/start", start...)

		emergency.GET("", h.ListEmergencies)

		emergency.GET("/history", h.EmergencyHistory)

		emergency.GET("/:id", h.GetEmergency)

		emergency.GET("/:id/matches", h.MatchEmergency)

		emergency.POST("/:id/accept", h.AcceptEmergency)

		emergency.POST("/:id/resolve", h.ResolveEmergency)

		emergency.POST("/:id/cancel", h.CancelEmergency)
	}
}

func (h *Handlers) registerResponderRoutes(r *gin.RouterGroup) {
	responders := r.Group("responders")
	{
		responders.POST("/location", h.ReportLocation)

		responders.PUT("/availability", h.SetAvailability)

		responders.DELETE("/location", h.StopBroadcast)
	}
}

func (h *Handlers) registerNotificationRoutes(r *gin.RouterGroup) {
	notifications := r.Group("notifications")
	{
		notifications.PUT("/subscription", h.UpsertSubscription)

		notifications.DELETE("/subscription", h.DeleteSubscription)
	}
}

func (h *Handlers) registerSessionRoutes(r *gin.RouterGroup) {
	sessions := r.Group("session")
	{
		sessions.GET("/:responderId", h.GetSession)

		sessions.POST("/:responderId/arrive", h.SessionArrive)

		sessions.POST("/:responderId/finish", h.SessionFinish)

		sessions.POST("/:responderId/abandon", h.SessionAbandon)

		sessions.POST("/:responderId/resync", h.SessionResync)
	}
}

func (h *Handlers) registerRealtimeRoutes(r *gin.RouterGroup) {
	r.GET("/ws/alerts/:id", h.AlertWebSocket)

	r.GET("/stream/alerts/:id", h.AlertStream)
}
