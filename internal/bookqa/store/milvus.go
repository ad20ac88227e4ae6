package store

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/bookqa/internal/pkg/textutil"
	"github.com/kart-io/bookqa/pkg/component/milvus"
)

// 集合元数据字段的长度上限。
const (
	maxLocatorLen = 512
	maxContentLen = 65535
)

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client     *milvus.Client
	collection string
}

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client, collection string) *MilvusStore {
	return &MilvusStore{client: client, collection: collection}
}

// EnsureCollection 确保 Milvus 集合存在。
// 主键为 unit_id，重复写入同一单元覆盖旧实体，保证摄入幂等。
func (s *MilvusStore) EnsureCollection(ctx context.Context, config *CollectionConfig) error {
	schema := &milvus.CollectionSchema{
		Name:        config.Name,
		Description: config.Description,
		Dimension:   config.Dimension,
		PrimaryKey:  "unit_id",
		MaxKeyLen:   64,
		MetaFields: []milvus.MetaField{
			{Name: "source_locator", DataType: entity.FieldTypeVarChar, MaxLen: maxLocatorLen},
			{Name: "sequence_index", DataType: entity.FieldTypeInt64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: maxContentLen},
			{Name: "model_version", DataType: entity.FieldTypeVarChar, MaxLen: 128},
		},
	}
	if err := s.client.CreateCollection(ctx, schema); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Upsert 按 unit_id 幂等写入记录。
func (s *MilvusStore) Upsert(ctx context.Context, records []*UnitRecord) error {
	if len(records) == 0 {
		return nil
	}

	keys := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	metadata := map[string][]any{
		"source_locator": make([]any, len(records)),
		"sequence_index": make([]any, len(records)),
		"content":        make([]any, len(records)),
		"model_version":  make([]any, len(records)),
	}

	for i, rec := range records {
		keys[i] = rec.Unit.ID
		embeddings[i] = rec.Vector
		metadata["source_locator"][i] = textutil.TruncateString(rec.Unit.SourceLocator, maxLocatorLen)
		metadata["sequence_index"][i] = int64(rec.Unit.SequenceIndex)
		metadata["content"][i] = textutil.TruncateString(rec.Unit.Content, maxContentLen)
		metadata["model_version"][i] = rec.ModelVersion
	}

	data := &milvus.UpsertData{
		PrimaryKey: "unit_id",
		Keys:       keys,
		Embeddings: embeddings,
		Metadata:   metadata,
	}

	if err := s.client.Upsert(ctx, s.collection, data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Query 执行向量相似度检索。
// 无匹配返回空切片；Milvus 不可达返回 ErrUnavailable。
func (s *MilvusStore) Query(ctx context.Context, vector []float32, topK int, scoreThreshold float32) ([]*RetrievedUnit, error) {
	outputFields := []string{"source_locator", "content"}
	results, err := s.client.Search(ctx, s.collection, vector, topK, outputFields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	retrieved := make([]*RetrievedUnit, 0, len(results))
	for _, r := range results {
		if r.Score < scoreThreshold {
			continue
		}
		unit := &RetrievedUnit{
			UnitID: r.ID,
			Score:  r.Score,
		}
		if v, ok := r.Metadata["source_locator"].(string); ok {
			unit.SourceLocator = v
		}
		if v, ok := r.Metadata["content"].(string); ok {
			unit.Content = v
		}
		retrieved = append(retrieved, unit)
	}

	return retrieved, nil
}

// DeleteBySource 删除指定来源的全部单元。
func (s *MilvusStore) DeleteBySource(ctx context.Context, sourceLocator string) error {
	expr := fmt.Sprintf("source_locator == %q", sourceLocator)
	if err := s.client.DeleteByFilter(ctx, s.collection, expr); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Count 返回集合中的单元数量。
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	count, err := s.client.GetCollectionStats(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// 确保 MilvusStore 实现了 VectorStore 接口。
var _ VectorStore = (*MilvusStore)(nil)
