package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthCheck 单项依赖检查
type HealthCheck func(ctx context.Context) error

// HealthController 健康检查控制器
type HealthController struct {
	checks map[string]HealthCheck
}

// NewHealthController 创建健康检查控制器,数据库为必选检查项
func NewHealthController(db *gorm.DB) *HealthController {
	c := &HealthController{checks: make(map[string]HealthCheck)}
	if db != nil {
		c.Register("database", DatabaseCheck(db))
	}
	return c
}

// Register 注册可选依赖(redis、openfga 等)
func (c *HealthController) Register(name string, check HealthCheck) {
	c.checks[name] = check
}

// DatabaseCheck 数据库连通性检查
func DatabaseCheck(db *gorm.DB) HealthCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// OpenFGACheck 由布尔探测函数构造检查项
func OpenFGACheck(probe func(ctx context.Context) bool) HealthCheck {
	return func(ctx context.Context) error {
		if !probe(ctx) {
			return errors.New("openfga is not reachable")
		}
		return nil
	}
}

// Check 健康检查
// @Summary      健康检查
// @Description  检查数据库及已配置的外部依赖
// @Tags         运维
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /health [get]
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	results := make(map[string]string, len(c.checks))

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		err := c.checks[name](checkCtx)
		cancel()
		if err != nil {
			status = "unhealthy"
			results[name] = "unhealthy: " + err.Error()
			continue
		}
		results[name] = "healthy"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    results,
	})
}
