package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/pkg/utils/json"
)

// QueryCacheConfig 查询缓存配置。
type QueryCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// QueryCache 全库问答结果缓存。
//
// 仅全库模式的结果可缓存：选中文本模式的上下文由请求临时给出，
// 相同问题配不同选区会得到不同答案，不具备缓存键稳定性。
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache 创建查询缓存实例。
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "bookqa:query:",
		}
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "bookqa:query:"
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey 基于模式与问题生成缓存键。
func (c *QueryCache) cacheKey(mode model.Mode, question string) string {
	hash := sha256.Sum256([]byte(string(mode) + "\x00" + question))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

// Get 读取缓存的查询结果，未命中或未启用时返回 (nil, nil)。
func (c *QueryCache) Get(ctx context.Context, mode model.Mode, question string) (*model.QueryResult, error) {
	if !c.config.Enabled || c.redis == nil || mode != model.ModeWholeCorpus {
		return nil, nil
	}

	key := c.cacheKey(mode, question)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("query cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to read query cache", "key", key, "error", err.Error())
		return nil, err
	}

	var result model.QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to decode cached result, dropping key", "key", key, "error", err.Error())
		_ = c.redis.Del(ctx, key).Err()
		return nil, nil
	}

	logger.Infow("query cache hit", "key", key, "answer_length", len(result.Answer))
	return &result, nil
}

// Set 写入查询结果。拒答结果同样缓存：拒答由语料内容决定，
// 在语料变更前对相同问题保持稳定。
func (c *QueryCache) Set(ctx context.Context, mode model.Mode, question string, result *model.QueryResult) error {
	if !c.config.Enabled || c.redis == nil || mode != model.ModeWholeCorpus {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to encode result for caching", "error", err.Error())
		return err
	}

	key := c.cacheKey(mode, question)
	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to write query cache", "key", key, "error", err.Error())
		return err
	}
	return nil
}

// Clear 清除全部查询缓存，语料变更（摄入、删除来源）后调用。
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "key", iter.Val(), "error", err.Error())
		} else {
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warnw("query cache scan failed", "error", err.Error())
		return err
	}

	logger.Infow("query cache cleared", "deleted_count", deleted)
	return nil
}

// Stats 返回缓存统计信息。
func (c *QueryCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]interface{}{"enabled": false}, nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
