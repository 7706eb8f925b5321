package api

import (
	"Neurologix/backend/go/internal/config"
	"Neurologix/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, auth config.AuthConfig, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	r.GET("/health", h.Health)

	// 使用 v1 版本对 API 进行分组，所有问答接口都需要 JWT
	apiV1 := r.Group("/api/v1")
	apiV1.Use(ScopeMiddleware(auth))
	{
		apiV1.POST("/query", h.Query)
	}

	return r
}
