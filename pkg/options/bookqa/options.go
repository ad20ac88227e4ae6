// Package bookqa provides question-answering pipeline configuration options.
package bookqa

import (
	"fmt"
	"time"

	"github.com/kart-io/bookqa/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options contains the ingestion and query pipeline configuration.
type Options struct {
	// Collection is the name of the vector collection.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// TokenBudget 每个文本单元的词元数上限。
	TokenBudget int `json:"token-budget" mapstructure:"token-budget"`

	// TokenOverlap 同一来源相邻单元间的词元重叠数。
	TokenOverlap int `json:"token-overlap" mapstructure:"token-overlap"`

	// EmbedBatchSize 单次嵌入请求的最大文本数。
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// TopK is the number of results to return from similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// ScoreThreshold 检索结果保留的最低相似度分数。
	ScoreThreshold float32 `json:"score-threshold" mapstructure:"score-threshold"`

	// MinSelectedTokens 选中文本模式可用的最小词元数。
	MinSelectedTokens int `json:"min-selected-tokens" mapstructure:"min-selected-tokens"`

	// ContextTokenBudget 生成器输入上下文的词元预算。
	ContextTokenBudget int `json:"context-token-budget" mapstructure:"context-token-budget"`

	// Verifier 接地校验器类型（overlap 或 chat）。
	Verifier string `json:"verifier" mapstructure:"verifier"`

	// IngestWorkers 向量写入阶段的最大并发数。
	IngestWorkers int `json:"ingest-workers" mapstructure:"ingest-workers"`

	// UpsertBatchSize 单次向量写入的记录数上限。
	UpsertBatchSize int `json:"upsert-batch-size" mapstructure:"upsert-batch-size"`

	// SessionTTL 会话不活跃过期时长。
	SessionTTL time.Duration `json:"session-ttl" mapstructure:"session-ttl"`

	// SessionSweepInterval 过期会话清扫周期。
	SessionSweepInterval time.Duration `json:"session-sweep-interval" mapstructure:"session-sweep-interval"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Collection:           "bookqa_units",
		EmbeddingDim:         768, // nomic-embed-text dimension
		TokenBudget:          512,
		TokenOverlap:         50,
		EmbedBatchSize:       16,
		TopK:                 5,
		ScoreThreshold:       0.3,
		MinSelectedTokens:    8,
		ContextTokenBudget:   3072,
		Verifier:             "overlap",
		IngestWorkers:        4,
		UpsertBatchSize:      64,
		SessionTTL:           30 * time.Minute,
		SessionSweepInterval: 5 * time.Minute,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"bookqa.collection", o.Collection, "Vector collection name.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"bookqa.embedding-dim", o.EmbeddingDim, "Dimension of embedding vectors.")
	fs.IntVar(&o.TokenBudget, options.Join(prefixes...)+"bookqa.token-budget", o.TokenBudget, "Token budget per text unit.")
	fs.IntVar(&o.TokenOverlap, options.Join(prefixes...)+"bookqa.token-overlap", o.TokenOverlap, "Token overlap between adjacent units of one source.")
	fs.IntVar(&o.EmbedBatchSize, options.Join(prefixes...)+"bookqa.embed-batch-size", o.EmbedBatchSize, "Maximum texts per embedding request.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"bookqa.top-k", o.TopK, "Number of results from similarity search.")
	fs.Float32Var(&o.ScoreThreshold, options.Join(prefixes...)+"bookqa.score-threshold", o.ScoreThreshold, "Minimum similarity score for retrieved units.")
	fs.IntVar(&o.MinSelectedTokens, options.Join(prefixes...)+"bookqa.min-selected-tokens", o.MinSelectedTokens, "Minimum usable tokens for selected-text mode.")
	fs.IntVar(&o.ContextTokenBudget, options.Join(prefixes...)+"bookqa.context-token-budget", o.ContextTokenBudget, "Token budget for generator input context.")
	fs.StringVar(&o.Verifier, options.Join(prefixes...)+"bookqa.verifier", o.Verifier, "Grounding verifier type (overlap or chat).")
	fs.IntVar(&o.IngestWorkers, options.Join(prefixes...)+"bookqa.ingest-workers", o.IngestWorkers, "Maximum concurrent vector upsert workers.")
	fs.IntVar(&o.UpsertBatchSize, options.Join(prefixes...)+"bookqa.upsert-batch-size", o.UpsertBatchSize, "Maximum records per vector upsert.")
	fs.DurationVar(&o.SessionTTL, options.Join(prefixes...)+"bookqa.session-ttl", o.SessionTTL, "Session inactivity expiry duration.")
	fs.DurationVar(&o.SessionSweepInterval, options.Join(prefixes...)+"bookqa.session-sweep-interval", o.SessionSweepInterval, "Expired session sweep interval.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("collection is required"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive"))
	}
	if o.TokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("token-budget must be positive"))
	}
	if o.TokenOverlap < 0 || o.TokenOverlap >= o.TokenBudget {
		errs = append(errs, fmt.Errorf("token-overlap must be in [0, token-budget)"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.ScoreThreshold < 0 || o.ScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("score-threshold must be in [0, 1]"))
	}
	if o.ContextTokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("context-token-budget must be positive"))
	}
	if o.Verifier != "overlap" && o.Verifier != "chat" {
		errs = append(errs, fmt.Errorf("verifier must be overlap or chat"))
	}
	if o.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("session-ttl must be positive"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 16
	}
	if o.IngestWorkers <= 0 {
		o.IngestWorkers = 4
	}
	if o.UpsertBatchSize <= 0 {
		o.UpsertBatchSize = 64
	}
	if o.SessionSweepInterval <= 0 {
		o.SessionSweepInterval = 5 * time.Minute
	}
	return nil
}
