package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/bookqa/internal/bookqa/metrics"
	"github.com/kart-io/bookqa/internal/bookqa/store"
	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/pkg/llm"
)

// 接地校验器类型。
const (
	VerifierOverlap = "overlap"
	VerifierChat    = "chat"
)

// QueryRequest 一次问答请求。
type QueryRequest struct {
	// SessionID 可选，给出时本轮写入会话历史。
	SessionID string
	// Mode 问答模式，两种模式互斥。
	Mode model.Mode
	// Question 用户问题。
	Question string
	// SelectedText 选中文本模式的上下文，全库模式必须为空。
	SelectedText string
}

// Service 定义问答服务接口。
type Service interface {
	// Ingest 摄入一个文档来源，返回逐单元记账结果。
	Ingest(ctx context.Context, doc *model.Document) (*IngestReport, error)
	// Query 执行一次问答。
	Query(ctx context.Context, req *QueryRequest) (*model.QueryResult, error)
	// PurgeSource 删除指定来源的全部单元。
	PurgeSource(ctx context.Context, sourceLocator string) error
	// CreateSession 创建查询会话。
	CreateSession(ctx context.Context) (string, error)
	// SessionHistory 返回会话的只读历史。
	SessionHistory(ctx context.Context, sessionID string) ([]*Turn, error)
	// Stats 返回服务统计信息。
	Stats(ctx context.Context) (map[string]any, error)
}

// ServiceConfig 问答服务配置。
type ServiceConfig struct {
	ChunkerConfig    *ChunkerConfig
	EmbedderConfig   *EmbedderConfig
	IngestorConfig   *IngestorConfig
	ControllerConfig *ControllerConfig
	ValidatorConfig  *ValidatorConfig
	SessionConfig    *SessionManagerConfig
	// Verifier 接地校验器类型：overlap 或 chat。
	Verifier string
}

// BookQAService 组合摄入管线与问答管线提供完整服务。
type BookQAService struct {
	ingestor   *Ingestor
	controller *Controller
	generator  *Generator
	validator  *Validator
	sessions   *SessionManager
	cache      *QueryCache
	vectors    store.VectorStore

	embedProvider llm.EmbeddingProvider
	chatProvider  llm.ChatProvider
	config        *ServiceConfig
	metrics       *metrics.Metrics
}

// NewBookQAService 创建问答服务实例。
func NewBookQAService(
	vectorStore store.VectorStore,
	factory store.Factory,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	cache *QueryCache,
	config *ServiceConfig,
) (*BookQAService, error) {
	chunker, err := NewChunker(config.ChunkerConfig)
	if err != nil {
		return nil, err
	}
	embedder := NewEmbedder(embedProvider, config.EmbedderConfig)

	ingestor, err := NewIngestor(chunker, embedder, vectorStore, factory.IngestUnits(), config.IngestorConfig)
	if err != nil {
		return nil, err
	}

	var verifier Verifier
	switch config.Verifier {
	case VerifierChat:
		verifier = NewChatVerifier(chatProvider)
	case VerifierOverlap, "":
		verifier = NewOverlapVerifier(DefaultOverlapVerifierConfig())
	default:
		return nil, fmt.Errorf("unknown verifier type %q", config.Verifier)
	}

	return &BookQAService{
		ingestor:      ingestor,
		controller:    NewController(vectorStore, embedder, config.ControllerConfig),
		generator:     NewGenerator(chatProvider),
		validator:     NewValidator(verifier, config.ValidatorConfig),
		sessions:      NewSessionManager(factory.Sessions(), config.SessionConfig),
		cache:         cache,
		vectors:       vectorStore,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
		config:        config,
		metrics:       metrics.Get(),
	}, nil
}

// Start 准备向量集合并启动会话清扫。
func (s *BookQAService) Start(ctx context.Context) error {
	if err := s.ingestor.EnsureReady(ctx); err != nil {
		return err
	}
	s.sessions.StartSweeper(ctx)
	return nil
}

// Stop 停止后台任务并释放工作池。
func (s *BookQAService) Stop() {
	s.sessions.StopSweeper()
	s.ingestor.Close()
}

// Ingest 摄入一个文档来源。
func (s *BookQAService) Ingest(ctx context.Context, doc *model.Document) (*IngestReport, error) {
	report, err := s.ingestor.IngestDocument(ctx, doc)
	if err != nil {
		s.metrics.RecordIngest(0, 0, 0, err)
		return nil, err
	}
	s.metrics.RecordIngest(report.Stored, report.Skipped, report.Failed, nil)

	// 语料变更使缓存答案失效
	if report.Stored > 0 && s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			logger.Warnw("failed to clear query cache after ingest", "error", err.Error())
		}
	}
	return report, nil
}

// Query 执行一次问答。
//
// 两种模式互斥：全库模式经向量检索装配上下文，选中文本模式仅用
// 请求携带的文本。上下文无法装配时直接拒答，不进入生成。
func (s *BookQAService) Query(ctx context.Context, req *QueryRequest) (*model.QueryResult, error) {
	if err := validateQueryRequest(req); err != nil {
		return nil, err
	}
	selectedMode := req.Mode == model.ModeSelectedText

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, req.Mode, req.Question)
		if err == nil && cached != nil {
			s.metrics.RecordQuery(true, nil)
			s.appendTurn(ctx, req, cached)
			return cached, nil
		}
	}

	var queryErr error
	defer func() {
		if queryErr != nil {
			s.metrics.RecordQuery(false, queryErr)
		}
	}()

	// 装配上下文
	var assembly *Assembly
	if selectedMode {
		assembly = AssembleSelectedText(req.SelectedText, s.controller.MinSelectedTokens())
	} else {
		retrievalStart := time.Now()
		var err error
		assembly, err = s.controller.AssembleWholeCorpus(ctx, req.Question)
		s.metrics.RecordRetrieval(time.Since(retrievalStart), err)
		if err != nil {
			queryErr = err
			return nil, err
		}
	}

	if assembly.State == StateContextInsufficient {
		return s.refuse(ctx, req, selectedMode), nil
	}

	units, err := s.validator.PreCheck(assembly)
	if err != nil {
		return s.refuse(ctx, req, selectedMode), nil
	}

	// 生成草稿
	llmStart := time.Now()
	draft, err := s.generator.Generate(ctx, selectedMode, units, req.Question)
	s.metrics.RecordLLMCall(time.Since(llmStart), err)
	if err != nil {
		queryErr = err
		return nil, err
	}

	// 接地后检：未接地的草稿替换为拒答
	answer, refused := s.validator.PostCheck(ctx, req.Mode, units, draft)

	result := &model.QueryResult{
		Answer:   answer,
		Sources:  unitSources(selectedMode, units),
		ModeUsed: req.Mode,
		Refused:  refused,
	}
	if refused {
		s.metrics.RecordRefusal(selectedMode)
	}
	s.metrics.RecordQuery(false, nil)

	if s.cache != nil {
		_ = s.cache.Set(ctx, req.Mode, req.Question, result)
	}
	s.appendTurn(ctx, req, result)
	return result, nil
}

// PurgeSource 删除指定来源的全部单元并清空查询缓存。
func (s *BookQAService) PurgeSource(ctx context.Context, sourceLocator string) error {
	if err := s.ingestor.PurgeSource(ctx, sourceLocator); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			logger.Warnw("failed to clear query cache after purge", "error", err.Error())
		}
	}
	return nil
}

// CreateSession 创建查询会话。
func (s *BookQAService) CreateSession(ctx context.Context) (string, error) {
	id, err := s.sessions.Create(ctx)
	if err != nil {
		return "", err
	}
	s.metrics.RecordSessionCreated()
	return id, nil
}

// SessionHistory 返回会话的只读历史。
func (s *BookQAService) SessionHistory(ctx context.Context, sessionID string) ([]*Turn, error) {
	return s.sessions.History(ctx, sessionID)
}

// Stats 返回服务统计信息。
func (s *BookQAService) Stats(ctx context.Context) (map[string]any, error) {
	stats := map[string]any{
		"embed_provider": s.embedProvider.Name(),
		"chat_provider":  s.chatProvider.Name(),
		"verifier":       s.config.Verifier,
	}

	count, err := s.vectors.Count(ctx)
	if err != nil {
		logger.Warnw("failed to count stored units", "error", err.Error())
	} else {
		stats["unit_count"] = count
	}

	if s.cache != nil {
		if cacheStats, err := s.cache.Stats(ctx); err == nil {
			stats["cache"] = cacheStats
		}
	}

	stats["metrics"] = s.metrics.Stats()
	return stats, nil
}

// refuse 构造拒答结果并记账。拒答不携带任何来源引用。
func (s *BookQAService) refuse(ctx context.Context, req *QueryRequest, selectedMode bool) *model.QueryResult {
	result := &model.QueryResult{
		Answer:   RefusalForMode(selectedMode),
		Sources:  []model.UnitSource{},
		ModeUsed: req.Mode,
		Refused:  true,
	}
	s.metrics.RecordRefusal(selectedMode)
	s.metrics.RecordQuery(false, nil)
	if s.cache != nil {
		_ = s.cache.Set(ctx, req.Mode, req.Question, result)
	}
	s.appendTurn(ctx, req, result)
	return result
}

// appendTurn 将本轮写入会话历史，未带会话 ID 时为空操作。
func (s *BookQAService) appendTurn(ctx context.Context, req *QueryRequest, result *model.QueryResult) {
	if req.SessionID == "" {
		return
	}
	_, err := s.sessions.AppendTurn(ctx, req.SessionID, req.Mode, req.Question, result.Answer, result.Refused, result.Sources)
	if err != nil {
		logger.Warnw("failed to append session turn", "session", req.SessionID, "error", err.Error())
	}
}

func validateQueryRequest(req *QueryRequest) error {
	if !req.Mode.Valid() {
		return fmt.Errorf("%w: invalid mode %q", ErrInvalidRequest, req.Mode)
	}
	if req.Question == "" {
		return fmt.Errorf("%w: question must not be empty", ErrInvalidRequest)
	}
	switch req.Mode {
	case model.ModeWholeCorpus:
		if req.SelectedText != "" {
			return fmt.Errorf("%w: selected_text must be empty in whole-corpus mode", ErrInvalidRequest)
		}
	case model.ModeSelectedText:
		if req.SelectedText == "" {
			return fmt.Errorf("%w: selected_text is required in selected-text mode", ErrInvalidRequest)
		}
	}
	return nil
}

// unitSources 由上下文单元构造来源引用。选中文本模式的上下文
// 来自请求本身，不产生引用。
func unitSources(selectedMode bool, units []*ContextUnit) []model.UnitSource {
	if selectedMode {
		return []model.UnitSource{}
	}
	sources := make([]model.UnitSource, len(units))
	for i, unit := range units {
		sources[i] = model.UnitSource{
			UnitID:        unit.UnitID,
			SourceLocator: unit.SourceLocator,
			Content:       unit.Content,
			Score:         unit.Score,
		}
	}
	return sources
}

// 确保 BookQAService 实现了 Service 接口。
var _ Service = (*BookQAService)(nil)
