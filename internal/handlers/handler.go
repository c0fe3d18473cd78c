package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gleadbet/nest/internal/logger"
	"github.com/gleadbet/nest/internal/service"
)

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services  *service.Service
	log       *logger.Logger
	cookieTTL time.Duration
}

// NewHandler constructs the HTTP handler. cookieTTL bounds the session
// cookie max-age and must match the codec's signing TTL.
func NewHandler(services *service.Service, cookieTTL time.Duration, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log, cookieTTL: cookieTTL}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// WebSocket upgrade shares the session cookie with the REST surface.
	router.GET("/ws/devices/:id", h.sessionMiddleware, h.wsDevice)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.GET("/login", h.login)
		auth.GET("/callback", h.callback)
		auth.POST("/logout", h.optionalSessionMiddleware, h.logout)
		// Some dashboard builds navigate here directly.
		auth.GET("/logout", h.optionalSessionMiddleware, h.logout)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	// Status must answer for anonymous visitors too, so it sits outside the
	// required-session group.
	r.GET("/api/auth/status", h.optionalSessionMiddleware, h.authStatus)

	api := r.Group("/api", h.sessionMiddleware)
	{
		h.registerDeviceRoutes(api)
	}
}

func (h *Handler) registerDeviceRoutes(api *gin.RouterGroup) {
	devices := api.Group("/devices")
	{
		devices.GET("", h.listDevices)
		devices.GET("/:id", h.getDevice)
		devices.GET("/:id/temperature-history", h.temperatureHistory)
		// Body example: {"mode":"heat","value_c":21.5}
		devices.POST("/:id/temperature", h.setTemperature)
		devices.POST("/:id/mode", h.setDeviceMode)
		devices.POST("/:id/name", h.renameDevice)
	}
}
