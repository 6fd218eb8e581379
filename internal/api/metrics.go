package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/metrics"
)

// MetricsHandler Prometheus 指标端点
//
// @Summary      Prometheus 指标
// @Tags         运维
// @Produce      plain
// @Success      200  {string}  string
// @Router       /metrics [get]
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(metrics.Handler())
}
