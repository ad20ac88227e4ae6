package store

import (
	"context"
	"errors"

	"github.com/kart-io/bookqa/internal/model"
)

// ErrUnavailable 表示后端向量存储不可达。
// 全库检索遇到该错误时按"零结果"处理：拒答，绝不进入生成。
var ErrUnavailable = errors.New("vector store unavailable")

// UnitRecord 表示写入向量存储的一条记录：文本单元及其嵌入向量。
type UnitRecord struct {
	// Unit 文本单元。
	Unit *model.TextUnit
	// Vector 嵌入向量，维度必须与集合配置一致。
	Vector []float32
	// ModelVersion 生成向量的嵌入模型版本。
	ModelVersion string
}

// RetrievedUnit 表示一条相似度检索结果。
type RetrievedUnit struct {
	// UnitID 文本单元 ID。
	UnitID string
	// Content 单元内容。
	Content string
	// SourceLocator 来源定位（章节）。
	SourceLocator string
	// Score 相似度分数，已归一化到 [0, 1]。
	Score float32
}

// CollectionConfig 集合配置。
type CollectionConfig struct {
	// Name 集合名称。
	Name string
	// Description 集合描述。
	Description string
	// Dimension 向量维度，按部署固定。
	Dimension int
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// EnsureCollection 确保集合存在，已存在时为空操作。
	EnsureCollection(ctx context.Context, config *CollectionConfig) error

	// Upsert 按 UnitID 幂等写入记录，重复写入同一 ID 覆盖旧值。
	Upsert(ctx context.Context, records []*UnitRecord) error

	// Query 执行向量相似度检索，按分数降序返回至多 topK 条
	// 且分数不低于 scoreThreshold 的结果。
	// 无匹配时返回空切片而非错误；存储不可达时返回 ErrUnavailable。
	Query(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]*RetrievedUnit, error)

	// DeleteBySource 删除指定来源的全部单元。
	DeleteBySource(ctx context.Context, sourceLocator string) error

	// Count 返回集合中的单元数量。
	Count(ctx context.Context) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}
