package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roomgate/backend/internal/monitoring"
)

// unmatchedRoute 未命中任何路由的请求共用一个标签值
const unmatchedRoute = "unmatched"

// MonitoringMiddleware 请求指标与 panic 兜底
type MonitoringMiddleware struct {
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewMonitoringMiddleware 创建监控中间件
func NewMonitoringMiddleware(metrics *monitoring.Metrics, logger *zap.Logger) *MonitoringMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitoringMiddleware{metrics: metrics, logger: logger}
}

// HTTPMetrics 按路由模板记录请求数与耗时
//
// 标签用 /join/:identifier 这样的模板而不是实际路径，会议标识不会进入指标。
func (mm *MonitoringMiddleware) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		mm.metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// PanicRecovery 捕获 handler 中的 panic，计数并返回 500
func (mm *MonitoringMiddleware) PanicRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			mm.metrics.RecordPanic()
			mm.logger.Error("handler panicked",
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			)
			abort(c, http.StatusInternalServerError, "INTERNAL", "服务器内部错误，请稍后重试")
		}()
		c.Next()
	}
}
