package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Tracing OpenTelemetry 追踪,未启用时所有方法为空操作
type Tracing struct {
	provider *tracesdk.TracerProvider
}

// InitTracing 初始化 Jaeger 导出的追踪
func InitTracing(cfg config.TracingConfig, env string) (*Tracing, error) {
	if !cfg.Enabled {
		return &Tracing{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerEndpoint)))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(ServiceName),
			semconv.DeploymentEnvironmentKey.String(env),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Tracing{provider: provider}, nil
}

// Enabled 是否启用
func (t *Tracing) Enabled() bool {
	return t != nil && t.provider != nil
}

// Middleware 追踪中间件
func (t *Tracing) Middleware() gin.HandlerFunc {
	return otelgin.Middleware(ServiceName)
}

// Shutdown 刷新并关闭追踪
func (t *Tracing) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
