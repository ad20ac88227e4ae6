package biz_test

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/bookqa/internal/bookqa/store"
	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/pkg/llm"
)

func newTestFactory(t *testing.T) store.Factory {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	factory, err := store.NewFactory(db)
	require.NoError(t, err)
	return factory
}

// fakeEmbeddingProvider 返回确定性向量：相同文本总是得到相同向量。
type fakeEmbeddingProvider struct {
	dim    int
	err    error
	badDim bool // 返回错误维度的向量
	calls  int
}

func (f *fakeEmbeddingProvider) vector(text string) []float32 {
	dim := f.dim
	if f.badDim {
		dim = f.dim + 1
	}
	v := make([]float32, dim)
	for i, r := range text {
		v[i%dim] += float32(r%31) / 31.0
	}
	return v
}

func (f *fakeEmbeddingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *fakeEmbeddingProvider) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbeddingProvider) Name() string { return "fake-embed" }

var _ llm.EmbeddingProvider = (*fakeEmbeddingProvider)(nil)

// fakeChatProvider 返回固定答案并记录收到的提示词。
type fakeChatProvider struct {
	answer  string
	err     error
	calls   int
	prompts []string
}

func (f *fakeChatProvider) Chat(_ context.Context, _ []llm.Message) (string, error) {
	return f.answer, f.err
}

func (f *fakeChatProvider) Generate(_ context.Context, prompt, _ string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeChatProvider) Name() string { return "fake-chat" }

var _ llm.ChatProvider = (*fakeChatProvider)(nil)

// fakeVectorStore 内存向量存储，记录调用以便断言。
type fakeVectorStore struct {
	mu           sync.Mutex
	records      map[string]*store.UnitRecord
	queryResults []*store.RetrievedUnit
	queryErr     error
	upsertErr    error
	queryCalls   int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{records: make(map[string]*store.UnitRecord)}
}

func (f *fakeVectorStore) EnsureCollection(_ context.Context, _ *store.CollectionConfig) error {
	return nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, records []*store.UnitRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, rec := range records {
		f.records[rec.Unit.ID] = rec
	}
	return nil
}

func (f *fakeVectorStore) Query(_ context.Context, _ []float32, topK int, _ float32) ([]*store.RetrievedUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if len(f.queryResults) > topK {
		return f.queryResults[:topK], nil
	}
	return f.queryResults, nil
}

func (f *fakeVectorStore) DeleteBySource(_ context.Context, sourceLocator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, rec := range f.records {
		if rec.Unit.SourceLocator == sourceLocator {
			delete(f.records, id)
		}
	}
	return nil
}

func (f *fakeVectorStore) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.records)), nil
}

func (f *fakeVectorStore) Close(_ context.Context) error { return nil }

func (f *fakeVectorStore) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

var _ store.VectorStore = (*fakeVectorStore)(nil)

// fakeUnitStateStore 内存摄入状态存储。
type fakeUnitStateStore struct {
	mu    sync.Mutex
	units map[string]*model.IngestUnit
}

func newFakeUnitStateStore() *fakeUnitStateStore {
	return &fakeUnitStateStore{units: make(map[string]*model.IngestUnit)}
}

func (f *fakeUnitStateStore) Save(_ context.Context, unit *model.IngestUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *unit
	f.units[unit.UnitID] = &cp
	return nil
}

func (f *fakeUnitStateStore) Get(_ context.Context, unitID string) (*model.IngestUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unit, ok := f.units[unitID]
	if !ok {
		return nil, nil
	}
	cp := *unit
	return &cp, nil
}

func (f *fakeUnitStateStore) ListBySource(_ context.Context, sourceLocator string) ([]*model.IngestUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.IngestUnit
	for _, unit := range f.units {
		if unit.SourceLocator == sourceLocator {
			cp := *unit
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUnitStateStore) DeleteBySource(_ context.Context, sourceLocator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, unit := range f.units {
		if unit.SourceLocator == sourceLocator {
			delete(f.units, id)
		}
	}
	return nil
}

var _ store.IngestUnitStore = (*fakeUnitStateStore)(nil)

// fakeFactory 把内存摄入状态存储和真实会话存储拼成一个 Factory。
type fakeFactory struct {
	unitStates store.IngestUnitStore
	sessions   store.SessionStore
}

func (f *fakeFactory) IngestUnits() store.IngestUnitStore { return f.unitStates }
func (f *fakeFactory) Sessions() store.SessionStore       { return f.sessions }
func (f *fakeFactory) Close() error                       { return nil }

var _ store.Factory = (*fakeFactory)(nil)
