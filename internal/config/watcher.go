package config

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Reloadable 运行中可以热更新的配置项
// 其他配置项(数据库、认证、provider 地址等)修改后需要重启服务
type Reloadable struct {
	LogLevel  string
	RateLimit RateLimitConfig
}

// ReloadableOf 提取可热更新的配置项
func ReloadableOf(cfg *Config) Reloadable {
	return Reloadable{LogLevel: cfg.Log.Level, RateLimit: cfg.RateLimit}
}

// ConfigWatcher 监听配置文件,可热更新的配置项变化时通知订阅者
type ConfigWatcher struct {
	viper  *viper.Viper
	logger logrus.FieldLogger

	mu          sync.Mutex
	current     *Config
	subscribers []func(*Config)
	stopped     atomic.Bool
}

// NewConfigWatcher 创建配置监听器,读取方式与 Load 一致
func NewConfigWatcher(cfg *Config, configPath string, logger logrus.FieldLogger) *ConfigWatcher {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConfigWatcher{viper: v, logger: logger.WithField("config_file", configPath), current: cfg}
}

// OnConfigChange 订阅配置变更
func (w *ConfigWatcher) OnConfigChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Start 读取配置文件并开始监听
func (w *ConfigWatcher) Start() error {
	if err := w.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	w.viper.OnConfigChange(func(fsnotify.Event) {
		if _, err := w.Reload(); err != nil {
			w.logger.WithError(err).Error("failed to reload config")
		}
	})
	w.viper.WatchConfig()
	return nil
}

// Reload 重新解析配置,返回可热更新项是否发生变化
// 变化时按订阅顺序同步通知
func (w *ConfigWatcher) Reload() (bool, error) {
	if w.stopped.Load() {
		return false, nil
	}
	if err := w.viper.ReadInConfig(); err != nil {
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	var next Config
	if err := w.viper.Unmarshal(&next); err != nil {
		return false, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	w.mu.Lock()
	changed := w.current == nil || ReloadableOf(w.current) != ReloadableOf(&next)
	w.current = &next
	subscribers := append([]func(*Config){}, w.subscribers...)
	w.mu.Unlock()

	if !changed {
		w.logger.Debug("config file changed, nothing to reload")
		return false, nil
	}
	w.logger.WithFields(logrus.Fields{
		"log_level": next.Log.Level,
		"rps":       next.RateLimit.RPS,
		"burst":     next.RateLimit.Burst,
	}).Info("config reloaded")
	for _, fn := range subscribers {
		fn(&next)
	}
	return true, nil
}

// Stop 停止通知,viper 的文件监听随进程退出
func (w *ConfigWatcher) Stop() {
	w.stopped.Store(true)
}

// GetConfig 最近一次解析的配置
func (w *ConfigWatcher) GetConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}
