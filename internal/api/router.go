package api

import (
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"github.com/meshkit/img2mesh/internal/infra/logger"
)

func NewRouter(gen Generator, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	prom := ginprometheus.NewPrometheus("gin")
	prom.Use(r)

	handler := NewHandler(gen, log)

	r.GET("/health", handler.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/generate", handler.Generate)
	}

	return r
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log.Info("request started",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.Next()
		log.Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}
