package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// NewRouter wires the chatbot routes onto a gin engine.
func NewRouter(c *RAGController) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), recovery(), CORS(), RequestID())

	router.GET("/", c.Root)
	router.GET("/info", c.ServiceInfo)
	router.GET("/health", c.Health)
	router.POST("/chat", c.Chat)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/chat", c.Chat)
		apiV1.GET("/health", c.Health)
		apiV1.GET("/status", c.PipelineStatus)
		apiV1.POST("/ingest", c.Ingest)
	}
	return router
}

// CORS allows every origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// recovery turns a panic into the standard error body.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.WithField(requestIDKey, c.GetString(requestIDKey)).Errorf("CONTROLLER: panic: %v", recovered)
		abortWithError(c, http.StatusInternalServerError, "internal server error")
	})
}
