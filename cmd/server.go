/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/container"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the AI Service API server.
The server will listen on the configured host and port, run the event
dispatcher and, when workflow.scheduler_interval is set, the in-process
workflow scheduler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		// 2. 初始化容器
		ctr, err := container.NewContainer(cfg, container.Options{})
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()
		logger := ctr.Logger()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// 3. 启动后台组件
		if err := ctr.Start(ctx); err != nil {
			return err
		}

		// 4. 配置热更新(仅在指定配置文件时)
		if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, logger)
			watcher.OnConfigChange(ctr.ApplyConfig)
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("config watcher disabled")
			} else {
				defer watcher.Stop()
			}
		}

		// 5. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           ctr.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		// 等待中断信号
		select {
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
		case <-ctx.Done():
		}

		logger.Info("shutting down server")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("server forced to shutdown")
		}
		if err := ctr.Tracing().Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}

		logger.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志,覆盖配置文件
	serverCmd.Flags().String("host", "", "Server host")
	serverCmd.Flags().Int("port", 0, "Server port")
}

// loadConfig 加载配置,命令行标志优先
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		cfg.Server.Host = f.Value.String()
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}
	return cfg, nil
}
