package handlers

import (
	"roomheat/internal/logger"
	"roomheat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health and metrics endpoints (public)
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth endpoints
	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Live room-state feed (HTTP upgrade, same port)
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerRoomRoutes(api)
		h.registerValveRoutes(api)
		h.registerBookingRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerRoomRoutes(api *gin.RouterGroup) {
	rooms := api.Group("/rooms")
	{
		rooms.GET("/", h.listRooms)
		rooms.GET("/:id", h.getRoom)
		rooms.POST("/:id/auto-mode", h.setAutoMode)
		rooms.POST("/:id/force-temperature", h.forceTemperature)
		rooms.POST("/:id/sync", h.syncRoomValves)
	}
}

func (h *Handler) registerValveRoutes(api *gin.RouterGroup) {
	valves := api.Group("/valves")
	{
		valves.GET("/health", h.valveHealth)
		valves.POST("/retry", h.retryUnresponsive)
	}
}

func (h *Handler) registerBookingRoutes(api *gin.RouterGroup) {
	bookings := api.Group("/bookings")
	{
		bookings.POST("/refresh", h.refreshBookings)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("/", h.getLogs)
	}
}
