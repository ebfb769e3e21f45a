// =============================================================================
// CanvasFlow 服务装配
// =============================================================================
// 组装执行核心的所有组件：配置、指标、LLM 提供商、Agent 构建器、
// 执行通道、持久化（可选）、Redis 快照存储（可选）、HTTP 路由
// =============================================================================

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/agent"
	"github.com/BaSui01/canvasflow/api/handlers"
	"github.com/BaSui01/canvasflow/browser"
	"github.com/BaSui01/canvasflow/channel"
	"github.com/BaSui01/canvasflow/config"
	"github.com/BaSui01/canvasflow/internal/cache"
	"github.com/BaSui01/canvasflow/internal/database"
	"github.com/BaSui01/canvasflow/internal/metrics"
	"github.com/BaSui01/canvasflow/internal/server"
	"github.com/BaSui01/canvasflow/internal/telemetry"
	"github.com/BaSui01/canvasflow/llm"
	"github.com/BaSui01/canvasflow/persistence"
)

// Server bundles every runtime component behind a single lifecycle.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers

	collector *metrics.Collector
	builder   *agent.Builder
	hub       *channel.Hub
	pool      *database.PoolManager
	cacheMgr  *cache.Manager
	manager   *server.Manager
}

// NewServer wires components from config. Database and Redis are optional:
// without them the server runs in degraded mode (no stored definitions, in
// memory snapshots).
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: otelProviders,
	}

	s.collector = metrics.NewCollector("canvasflow", logger)

	healthHandler := handlers.NewHealthHandler(logger)

	// ==========================================================================
	// 💾 数据库（可选）
	// ==========================================================================
	var defs agent.DefinitionStore
	if cfg.Database.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			logger.Error("database unavailable, running without persistence", zap.Error(err))
		} else if err := persistence.Migrate(db); err != nil {
			logger.Error("database migration failed, running without persistence", zap.Error(err))
		} else {
			pool, err := database.NewPoolManager(db, cfg.Database, s.collector, logger)
			if err != nil {
				logger.Error("pool manager init failed, running without persistence", zap.Error(err))
			} else {
				s.pool = pool
				defs = persistence.NewAgentRepository(db, logger)
				healthHandler.RegisterCheck(handlers.NewPingCheck("database", pool.Ping))
			}
		}
	}

	// ==========================================================================
	// 🗄️ 快照存储：Redis 优先，内存兜底
	// ==========================================================================
	var store channel.SnapshotStore
	if cfg.Redis.Enabled {
		mgr, err := cache.NewManager(cache.Config{
			Addr:                cfg.Redis.Addr,
			Password:            cfg.Redis.Password,
			DB:                  cfg.Redis.DB,
			DefaultTTL:          cfg.Channel.SnapshotTTL,
			MaxRetries:          3,
			PoolSize:            cfg.Redis.PoolSize,
			MinIdleConns:        cfg.Redis.MinIdleConns,
			HealthCheckInterval: 30 * time.Second,
		}, logger)
		if err != nil {
			logger.Error("redis unavailable, falling back to memory snapshot store", zap.Error(err))
		} else {
			s.cacheMgr = mgr
			store = channel.NewRedisStore(mgr, cfg.Channel.SnapshotTTL, s.collector)
			healthHandler.RegisterCheck(handlers.NewPingCheck("redis", mgr.Ping))
		}
	}
	if store == nil {
		store = channel.NewMemoryStore(cfg.Channel.SnapshotCapacity, s.collector)
	}

	// ==========================================================================
	// 🤖 LLM 提供商 + Agent 构建器
	// ==========================================================================
	var provider llm.Provider
	if cfg.LLM.APIKey != "" {
		provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		}, logger)
		if cfg.LLM.RateLimitRPS > 0 {
			provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RateLimitRPS, cfg.LLM.RateLimitBurst)
		}
	} else {
		logger.Warn("no LLM API key configured, agent execution will fail until one is set")
	}

	// 浏览器后端在独立的部署构建中链接，默认构建返回结构化错误
	driver := browser.Unavailable("no browser automation backend linked into this build")

	browserCfg := browser.Config{
		Headless:          cfg.Browser.Headless,
		Timeout:           cfg.Browser.Timeout,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
	}

	s.builder = agent.NewBuilder(driver, browserCfg, provider, cfg.Agent.Model, defs, s.collector, s.collector, logger)

	// ==========================================================================
	// 🔌 执行通道
	// ==========================================================================
	resolve := func(ctx context.Context, req agent.BuildRequest) (channel.Agent, error) {
		inst, err := s.builder.Build(ctx, req)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
	s.hub = channel.NewHub(resolve, store, s.collector, logger)

	// ==========================================================================
	// 🌐 路由
	// ==========================================================================
	agentHandler := handlers.NewAgentHandler(s.builder, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/ready", healthHandler.HandleReady)
	mux.HandleFunc("/version", healthHandler.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/agent/execute", agentHandler.HandleExecute)
	mux.HandleFunc("/ws/executions", s.hub.HandleWS)

	handler := handlers.WithObservability(mux, s.collector, logger)

	s.manager = server.NewManager(handler, cfg.Server, logger)

	return s
}

// Start brings the HTTP listener up.
func (s *Server) Start() error {
	if err := s.manager.Start(); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}
	s.logger.Info("server ready", zap.String("addr", s.manager.Addr()))
	return nil
}

// WaitForShutdown blocks until a signal or server error, then tears
// components down in reverse dependency order.
func (s *Server) WaitForShutdown() {
	s.manager.WaitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.builder.CloseAll(ctx)

	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Warn("failed to close cache manager", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Warn("failed to close database pool", zap.Error(err))
		}
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Warn("failed to shut down telemetry", zap.Error(err))
	}
}
