package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	m := Get()
	m.Reset()
	return m
}

func TestGet(t *testing.T) {
	m1 := Get()
	m2 := Get()
	assert.Same(t, m1, m2, "应该返回同一个单例实例")
}

func TestRecordQuery(t *testing.T) {
	m := newTestMetrics()

	m.RecordQuery(true, nil)
	m.RecordQuery(false, nil)
	m.RecordQuery(false, assert.AnError)

	stats := m.Stats()
	queries := stats["queries"].(map[string]interface{})
	assert.Equal(t, uint64(3), queries["total"])
	assert.Equal(t, uint64(1), queries["cache_hits"])
	assert.Equal(t, uint64(1), queries["cache_misses"])
	assert.Equal(t, uint64(1), queries["errors"])
	assert.Equal(t, 0.5, queries["cache_hit_rate"])
}

func TestRecordRefusal(t *testing.T) {
	m := newTestMetrics()

	// 4 次成功查询中 2 次拒答
	for i := 0; i < 4; i++ {
		m.RecordQuery(false, nil)
	}
	m.RecordRefusal(false)
	m.RecordRefusal(true)

	stats := m.Stats()
	refusals := stats["refusals"].(map[string]interface{})
	assert.Equal(t, uint64(1), refusals["whole_corpus"])
	assert.Equal(t, uint64(1), refusals["selected_text"])
	assert.Equal(t, 0.5, refusals["rate"])
}

func TestRecordRetrievalAndLLM(t *testing.T) {
	m := newTestMetrics()

	m.RecordRetrieval(100*time.Millisecond, nil)
	m.RecordRetrieval(300*time.Millisecond, nil)
	m.RecordRetrieval(0, assert.AnError)
	m.RecordLLMCall(500*time.Millisecond, nil)
	m.RecordLLMCall(0, assert.AnError)

	stats := m.Stats()
	retrieval := stats["retrieval"].(map[string]interface{})
	assert.Equal(t, uint64(3), retrieval["total"])
	assert.Equal(t, uint64(1), retrieval["errors"])
	assert.InDelta(t, 0.4, retrieval["total_duration_secs"], 0.001)

	llmStats := stats["llm"].(map[string]interface{})
	assert.Equal(t, uint64(2), llmStats["calls_total"])
	assert.Equal(t, uint64(1), llmStats["errors"])
}

func TestRecordIngest(t *testing.T) {
	m := newTestMetrics()

	m.RecordIngest(10, 3, 2, nil)
	m.RecordIngest(0, 0, 0, assert.AnError)

	stats := m.Stats()
	ingestion := stats["ingestion"].(map[string]interface{})
	assert.Equal(t, uint64(2), ingestion["requests"])
	assert.Equal(t, uint64(1), ingestion["errors"])
	assert.Equal(t, uint64(10), ingestion["units_stored"])
	assert.Equal(t, uint64(3), ingestion["units_skipped"])
	assert.Equal(t, uint64(2), ingestion["units_failed"])
}

func TestExport(t *testing.T) {
	m := newTestMetrics()

	m.RecordQuery(false, nil)
	m.RecordQuery(false, nil)
	m.RecordRefusal(false)
	m.RecordSessionCreated()
	m.RecordSessionsExpired(3)

	out := m.Export("bookqa", "")
	require.NotEmpty(t, out)

	assert.Contains(t, out, "bookqa_queries_total 2")
	assert.Contains(t, out, "bookqa_refusals_whole_corpus_total 1")
	assert.Contains(t, out, "bookqa_refusal_rate 0.5")
	assert.Contains(t, out, "bookqa_sessions_created_total 1")
	assert.Contains(t, out, "bookqa_sessions_expired_total 3")
	assert.Contains(t, out, "# TYPE bookqa_queries_total counter")
	assert.Contains(t, out, "# TYPE bookqa_refusal_rate gauge")
}

func TestExportWithSubsystem(t *testing.T) {
	m := newTestMetrics()
	out := m.Export("bookqa", "api")
	assert.True(t, strings.Contains(out, "bookqa_api_queries_total"))
}

func TestConcurrentRecording(t *testing.T) {
	m := newTestMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordQuery(j%2 == 0, nil)
				m.RecordRetrieval(time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	stats := m.Stats()
	queries := stats["queries"].(map[string]interface{})
	assert.Equal(t, uint64(1000), queries["total"])
}
