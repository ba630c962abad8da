package http

import (
	"fmt"

	"QueryLink/internal/config"
	"QueryLink/internal/modules/assistant/application/service"
	assistantHandler "QueryLink/internal/modules/assistant/interface/http"
	assistantWs "QueryLink/internal/modules/assistant/interface/ws"
	"QueryLink/pkg/ssl"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewEngine 组装 HTTP 服务。依赖显式传入，不靠包级 init。
func NewEngine(conf *config.Config, svc service.AssistantService) (*gin.Engine, error) {
	if conf == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("assistant service is nil")
	}

	ge := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	ge.Use(cors.New(corsConfig))
	if conf.MainConfig.EnableTLS {
		ge.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))
	}

	h := assistantHandler.NewAssistantHandler(svc)
	wsH := assistantWs.NewQueryStreamHandler(svc)

	ge.GET("/healthz", h.Healthz)
	api := ge.Group("/api")
	api.POST("/query", h.Query)
	api.GET("/tables", h.Tables)
	api.GET("/stats", h.Stats)
	api.GET("/suggestions", h.Suggestions)
	api.GET("/ws/query", wsH.Connect)

	return ge, nil
}
