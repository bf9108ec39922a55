package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomgate/backend/internal/middleware"
	"roomgate/backend/internal/service"
)

// IntegrationHandler 外部依赖状态接口
type IntegrationHandler struct {
	integrations *service.IntegrationService
	log          *zap.Logger
}

// NewIntegrationHandler 创建外部依赖处理器
func NewIntegrationHandler(integrations *service.IntegrationService, log *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{integrations: integrations, log: log}
}

// fileStorage 当前主体能否使用文件存储；不可用时前端隐藏相关功能
func (h *IntegrationHandler) fileStorage(c *gin.Context) {
	available := h.integrations.FileStorageAvailable(c.Request.Context(), middleware.PrincipalID(c))
	Success(c, gin.H{"available": available})
}

func (h *IntegrationHandler) identity(c *gin.Context) {
	identity, err := h.integrations.LookupIdentity(c.Request.Context(), middleware.PrincipalID(c), c.Param("subject"))
	if err != nil {
		respondError(c, h.log, err, nil)
		return
	}
	Success(c, identity)
}
