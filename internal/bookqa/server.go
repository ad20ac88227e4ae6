package bookqasvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/bookqa/internal/bookqa/biz"
	"github.com/kart-io/bookqa/internal/bookqa/handler"
	"github.com/kart-io/bookqa/internal/bookqa/router"
	"github.com/kart-io/bookqa/internal/bookqa/store"
	"github.com/kart-io/bookqa/pkg/app"
	"github.com/kart-io/bookqa/pkg/component/milvus"
	"github.com/kart-io/bookqa/pkg/component/postgres"
	redisclient "github.com/kart-io/bookqa/pkg/component/redis"
	"github.com/kart-io/bookqa/pkg/component/storage"
	"github.com/kart-io/bookqa/pkg/llm"
	"github.com/kart-io/bookqa/pkg/llm/resilience"
	bookqaopts "github.com/kart-io/bookqa/pkg/options/bookqa"
	cacheopts "github.com/kart-io/bookqa/pkg/options/cache"
	httpopts "github.com/kart-io/bookqa/pkg/options/http"
	llmopts "github.com/kart-io/bookqa/pkg/options/llm"
	logopts "github.com/kart-io/bookqa/pkg/options/logger"
	milvusopts "github.com/kart-io/bookqa/pkg/options/milvus"
	pgopts "github.com/kart-io/bookqa/pkg/options/postgres"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/bookqa/pkg/llm/ollama"
	_ "github.com/kart-io/bookqa/pkg/llm/openai"
)

// Name is the name of the application.
const Name = "bookqa"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	MilvusOptions    *milvusopts.Options
	PostgresOptions  *pgopts.Options
	CacheOptions     *cacheopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	BookQAOptions    *bookqaopts.Options
	ShutdownTimeout  time.Duration
}

// Server represents the BookQA server.
type Server struct {
	httpSrv         *http.Server
	service         *biz.BookQAService
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	printBanner(cfg)

	// 1. 初始化日志
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Infow("Starting BookQA service...", "version", app.GetVersion())

	var closers []func()
	storageMgr := storage.NewManager()

	// 2. 初始化 Milvus 客户端与向量存储
	milvusClient, err := milvus.New(cfg.MilvusOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	closers = append(closers, func() { _ = milvusClient.Close(context.Background()) })
	vectorStore := store.NewMilvusStore(milvusClient, cfg.BookQAOptions.Collection)
	logger.Infow("Vector store initialized", "collection", cfg.BookQAOptions.Collection)

	// 3. 初始化 Postgres 状态库
	pgClient, err := postgres.NewWithContext(ctx, cfg.PostgresOptions)
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	closers = append(closers, func() { _ = pgClient.Close() })
	storageMgr.MustRegister("postgres", pgClient)
	factory, err := store.NewFactory(pgClient.DB())
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to initialize store factory: %w", err)
	}
	logger.Info("State store initialized")

	// 4. 初始化 Redis 缓存，连接失败时降级为无缓存运行
	var redisRaw *goredis.Client
	var queryCache *biz.QueryCache
	if cfg.CacheOptions.Enabled {
		redisClient, err := redisclient.NewWithContext(ctx, cfg.CacheOptions.Redis)
		if err != nil {
			logger.Warnw("failed to connect to redis, query cache disabled", "error", err.Error())
		} else {
			redisRaw = redisClient.Client()
			queryCache = biz.NewQueryCache(redisRaw, &biz.QueryCacheConfig{
				Enabled:   true,
				TTL:       cfg.CacheOptions.TTL,
				KeyPrefix: cfg.CacheOptions.KeyPrefix,
			})
			closers = append(closers, func() { _ = redisClient.Close() })
			storageMgr.MustRegister("redis", redisClient)
			logger.Infow("Query cache initialized", "ttl", cfg.CacheOptions.TTL)
		}
	} else {
		logger.Info("Query cache is disabled")
	}

	// 5. 初始化 LLM 供应商
	embedProvider, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if redisRaw != nil {
		embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, redisRaw, nil)
	}
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
	)

	rawChat, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatProvider := resilience.NewResilientChatProvider(rawChat, nil, nil)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	// 6. 初始化 Biz 层
	serviceConfig := &biz.ServiceConfig{
		ChunkerConfig: &biz.ChunkerConfig{
			TokenBudget:  cfg.BookQAOptions.TokenBudget,
			TokenOverlap: cfg.BookQAOptions.TokenOverlap,
		},
		EmbedderConfig: &biz.EmbedderConfig{
			BatchSize:    cfg.BookQAOptions.EmbedBatchSize,
			Dimension:    cfg.BookQAOptions.EmbeddingDim,
			ModelVersion: cfg.EmbeddingOptions.Model,
		},
		IngestorConfig: &biz.IngestorConfig{
			Collection:      cfg.BookQAOptions.Collection,
			Dimension:       cfg.BookQAOptions.EmbeddingDim,
			Workers:         cfg.BookQAOptions.IngestWorkers,
			UpsertBatchSize: cfg.BookQAOptions.UpsertBatchSize,
		},
		ControllerConfig: &biz.ControllerConfig{
			TopK:              cfg.BookQAOptions.TopK,
			ScoreThreshold:    cfg.BookQAOptions.ScoreThreshold,
			MinSelectedTokens: cfg.BookQAOptions.MinSelectedTokens,
		},
		ValidatorConfig: &biz.ValidatorConfig{
			ContextTokenBudget: cfg.BookQAOptions.ContextTokenBudget,
		},
		SessionConfig: &biz.SessionManagerConfig{
			InactivityTTL: cfg.BookQAOptions.SessionTTL,
			SweepInterval: cfg.BookQAOptions.SessionSweepInterval,
		},
		Verifier: cfg.BookQAOptions.Verifier,
	}
	service, err := biz.NewBookQAService(vectorStore, factory, embedProvider, chatProvider, queryCache, serviceConfig)
	if err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to initialize bookqa service: %w", err)
	}
	if err := service.Start(ctx); err != nil {
		runClosers(closers)
		return nil, fmt.Errorf("failed to start bookqa service: %w", err)
	}
	logger.Infow("BookQA service initialized",
		"verifier", cfg.BookQAOptions.Verifier,
		"cache.enabled", queryCache != nil,
	)

	// 7. 初始化 Handler 与路由
	qaHandler := handler.New(service, storageMgr)
	engine := router.New(qaHandler)
	logger.Info("HTTP routes registered")

	httpSrv := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("BookQA service is ready")
	return &Server{
		httpSrv:         httpSrv,
		service:         service,
		shutdownTimeout: cfg.ShutdownTimeout,
		closers:         closers,
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails. Shutdown drains in-flight requests within the configured
// timeout before releasing backend connections.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down BookQA service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)
	s.shutdown()
	return err
}

func (s *Server) shutdown() {
	s.service.Stop()
	runClosers(s.closers)
}

func runClosers(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
}
