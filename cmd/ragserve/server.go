package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/ragserve/api/handlers"
	"github.com/BaSui01/ragserve/config"
	"github.com/BaSui01/ragserve/internal/database"
	"github.com/BaSui01/ragserve/internal/metrics"
	"github.com/BaSui01/ragserve/internal/server"
	"github.com/BaSui01/ragserve/internal/telemetry"
	"github.com/BaSui01/ragserve/llm"
	"github.com/BaSui01/ragserve/llm/embedding"
	"github.com/BaSui01/ragserve/rag"
	"github.com/BaSui01/ragserve/rag/loader"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 ragserve 的主服务器，负责组装检索流水线并管理生命周期。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler *handlers.HealthHandler
	uploadHandler *handlers.UploadHandler
	fileHandler   *handlers.FileHandler
	queryHandler  *handlers.QueryHandler
	streamHandler *handlers.StreamHandler

	// 依赖
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Provider
	fileStore        *database.FileStore
	vectorStore      rag.VectorStore
	redisClient      *redis.Client
	provider         llm.Provider

	// Rate limiter 清理 goroutine 的生命周期
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 组装流水线并启动所有服务
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("ragserve", s.logger)

	tp, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		s.telemetry = tp
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("vector_backend", s.cfg.Vector.Backend),
		zap.String("memory_backend", s.cfg.Memory.Backend),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 组装检索流水线并初始化所有 handlers
func (s *Server) initHandlers() error {
	// 文件登记库
	dbCfg := database.DefaultConfig()
	dbCfg.Path = s.cfg.Database.Path
	fileStore, err := database.Open(dbCfg, s.logger)
	if err != nil {
		return fmt.Errorf("open file registry: %w", err)
	}
	s.fileStore = fileStore

	// 向量索引
	s.vectorStore = s.buildVectorStore()

	// Gemini 聊天与嵌入
	provider := llm.NewGeminiProvider(llm.GeminiConfig{
		APIKey:  s.cfg.LLM.APIKey,
		BaseURL: s.cfg.LLM.BaseURL,
		Model:   s.cfg.LLM.ChatModel,
		Timeout: s.cfg.LLM.Timeout,
	}, s.logger)
	s.provider = provider

	embedBase := ""
	if s.cfg.LLM.BaseURL != "" {
		embedBase = strings.TrimRight(s.cfg.LLM.BaseURL, "/") + "/v1beta"
	}
	embedder := embedding.NewGeminiProvider(embedding.GeminiConfig{
		APIKey:  s.cfg.LLM.APIKey,
		BaseURL: embedBase,
		Model:   s.cfg.LLM.EmbedModel,
		Timeout: s.cfg.LLM.Timeout,
	})

	client := rag.NewProviderClient(provider, s.cfg.LLM.ChatModel)

	// 分块器
	splitter := rag.NewTextSplitter(rag.ChunkingConfig{
		ChunkSize:    s.cfg.Retrieval.ChunkSize,
		ChunkOverlap: s.cfg.Retrieval.ChunkOverlap,
	}, s.buildTokenizer(), s.logger)

	ingestor := rag.NewIngestor(splitter, embedder, s.vectorStore, fileStore, s.logger)
	retriever := rag.NewCandidateRetriever(s.vectorStore, embedder, rag.DefaultRetrieverConfig(), s.metricsCollector, s.logger)

	orchestrator := rag.NewRetrievalOrchestrator(rag.OrchestratorDeps{
		Rewriter:  rag.NewQueryRewriter(client, s.logger),
		Estimator: rag.NewDifficultyEstimator(client, s.logger),
		Retriever: retriever,
		Ranker:    rag.NewDocumentRanker(s.cfg.Retrieval.MaxDocs, s.logger),
		Generator: rag.NewAnswerGenerator(client, s.logger),
		Memory:    s.buildMemory(),
		Metrics:   s.metricsCollector,
		Logger:    s.logger,
	})

	// Handlers
	s.healthHandler = handlers.NewHealthHandler(s.logger, Version)
	s.registerHealthChecks()
	s.uploadHandler = handlers.NewUploadHandler(loader.NewRegistry(), ingestor, s.metricsCollector, s.logger)
	s.fileHandler = handlers.NewFileHandler(ingestor, s.logger)
	s.queryHandler = handlers.NewQueryHandler(orchestrator, retriever, s.logger)
	s.streamHandler = handlers.NewStreamHandler(orchestrator, s.metricsCollector, s.logger)

	s.logger.Info("Handlers initialized",
		zap.String("chat_model", s.cfg.LLM.ChatModel),
		zap.String("embed_model", s.cfg.LLM.EmbedModel),
	)
	return nil
}

// buildVectorStore 根据配置选择向量索引后端
func (s *Server) buildVectorStore() rag.VectorStore {
	if s.cfg.Vector.Backend == "qdrant" {
		return rag.NewQdrantStore(rag.QdrantConfig{
			Host:                 s.cfg.Vector.Host,
			Port:                 s.cfg.Vector.Port,
			Collection:           s.cfg.Vector.Collection,
			APIKey:               s.cfg.Vector.APIKey,
			AutoCreateCollection: true,
		}, s.logger)
	}
	return rag.NewInMemoryVectorStore(s.logger)
}

// buildMemory 根据配置选择会话记忆后端
func (s *Server) buildMemory() rag.ConversationMemory {
	if s.cfg.Memory.Backend == "redis" {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     s.cfg.Memory.RedisAddr,
			Password: s.cfg.Memory.RedisPassword,
		})
		return rag.NewRedisMemory(s.redisClient, "default", rag.RedisMemoryConfig{
			KeyPrefix: s.cfg.Memory.RedisKeyPrefix,
			Window:    s.cfg.Memory.WindowSize,
		}, s.logger)
	}
	return rag.NewWindowMemory(s.cfg.Memory.WindowSize)
}

// buildTokenizer 优先使用 tiktoken 统计，构建失败时退回估算器
func (s *Server) buildTokenizer() rag.Tokenizer {
	if s.cfg.Retrieval.TokenizerModel == "" {
		return rag.NewEstimatorTokenizer()
	}
	tok, err := rag.NewTiktokenTokenizer(s.cfg.Retrieval.TokenizerModel, s.logger)
	if err != nil {
		s.logger.Warn("tiktoken unavailable, falling back to estimator",
			zap.String("encoding", s.cfg.Retrieval.TokenizerModel),
			zap.Error(err))
		return rag.NewEstimatorTokenizer()
	}
	return tok
}

// registerHealthChecks 注册就绪探针所需的依赖检查
func (s *Server) registerHealthChecks() {
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "database",
		Fn: func(ctx context.Context) error {
			return s.fileStore.Ping(ctx)
		},
	})
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "vector_index",
		Fn: func(ctx context.Context) error {
			_, err := s.vectorStore.Count(ctx)
			return err
		},
	})
	s.healthHandler.RegisterCheck(handlers.HealthCheckFunc{
		CheckName: "model",
		Fn: func(ctx context.Context) error {
			_, err := s.provider.HealthCheck(ctx)
			return err
		},
	})
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 注册路由并启动 API 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)

	// 文档管理
	mux.HandleFunc("POST /upload_file", s.uploadHandler.HandleUpload)
	mux.HandleFunc("GET /api/v1/files", s.fileHandler.HandleList)
	mux.HandleFunc("PATCH /api/v1/files/{id}/active", s.fileHandler.HandleSetActive)
	mux.HandleFunc("DELETE /api/v1/files/{id}", s.fileHandler.HandleDelete)

	// 问答
	mux.HandleFunc("POST /rag", s.queryHandler.HandleQuery)
	mux.HandleFunc("POST /vector_search", s.queryHandler.HandleVectorSearch)
	mux.HandleFunc("POST /api/v1/citations", s.queryHandler.HandleCitations)
	mux.HandleFunc("DELETE /api/v1/memory", s.queryHandler.HandleClearMemory)

	// WebSocket 流式问答
	mux.HandleFunc("GET /ws/stream", s.streamHandler.HandleStream)

	// 中间件链
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.AllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metricsCollector.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞等待终止信号，随后优雅关闭
func (s *Server) WaitForShutdown() {
	server.WaitForSignal(s.logger, s.httpManager, s.metricsManager)
	s.Shutdown()
}

// Shutdown 释放流水线依赖
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Redis close error", zap.Error(err))
		}
	}

	if s.fileStore != nil {
		if err := s.fileStore.Close(); err != nil {
			s.logger.Error("File registry close error", zap.Error(err))
		}
	}

	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
