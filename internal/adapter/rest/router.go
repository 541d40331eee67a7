package rest

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the handler onto a gin engine
func NewRouter(h *Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Tracing())
	r.Use(Metrics())
	r.Use(Logging(logger))

	r.GET("/health", h.Health)

	api := r.Group("/api/accounts")
	{
		api.POST("/transfer", h.Transfer)
		api.GET("/summary", h.Summary)
		api.GET("/:id", h.GetAccount)
		api.GET("", h.ListAccounts)
		api.POST("", h.OpenAccount)
	}

	return r
}
