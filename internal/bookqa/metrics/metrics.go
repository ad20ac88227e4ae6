// Package metrics 提供问答服务的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics 问答服务业务指标。
type Metrics struct {
	// 查询指标
	queriesTotal       uint64 // 总查询次数
	queriesCacheHits   uint64 // 缓存命中次数
	queriesCacheMisses uint64 // 缓存未命中次数
	queriesErrors      uint64 // 查询错误次数

	// 拒答指标：按模式分别计数
	refusalsWholeCorpus  uint64 // 全库模式拒答次数
	refusalsSelectedText uint64 // 选中文本模式拒答次数

	// 检索指标
	retrievalTotal    uint64  // 总检索次数
	retrievalDuration float64 // 检索总耗时（秒）
	retrievalErrors   uint64  // 检索错误次数

	// LLM 调用指标
	llmCallsTotal    uint64  // LLM 总调用次数
	llmCallsDuration float64 // LLM 调用总耗时（秒）
	llmCallsErrors   uint64  // LLM 调用错误次数

	// 摄入指标
	unitsStored   uint64 // 已入库单元数
	unitsSkipped  uint64 // 重复摄入跳过的单元数
	unitsFailed   uint64 // 摄入失败单元数
	ingestsTotal  uint64 // 摄入请求次数
	ingestsErrors uint64 // 摄入失败次数

	// 会话指标
	sessionsCreated uint64 // 创建的会话数
	sessionsExpired uint64 // 过期清理的会话数

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Get 获取全局指标实例。
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{startTime: time.Now()}
	})
	return globalMetrics
}

// RecordQuery 记录一次查询。
func (m *Metrics) RecordQuery(cacheHit bool, err error) {
	atomic.AddUint64(&m.queriesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.queriesErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.queriesCacheHits, 1)
	} else {
		atomic.AddUint64(&m.queriesCacheMisses, 1)
	}
}

// RecordRefusal 记录一次拒答。
func (m *Metrics) RecordRefusal(selectedText bool) {
	if selectedText {
		atomic.AddUint64(&m.refusalsSelectedText, 1)
	} else {
		atomic.AddUint64(&m.refusalsWholeCorpus, 1)
	}
}

// RecordRetrieval 记录一次向量检索。
func (m *Metrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMCall 记录一次 LLM 调用。
func (m *Metrics) RecordLLMCall(duration time.Duration, err error) {
	atomic.AddUint64(&m.llmCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.llmCallsErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordIngest 记录一次摄入请求的逐单元结果。
func (m *Metrics) RecordIngest(stored, skipped, failed int, err error) {
	atomic.AddUint64(&m.ingestsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.ingestsErrors, 1)
		return
	}
	atomic.AddUint64(&m.unitsStored, uint64(stored))
	atomic.AddUint64(&m.unitsSkipped, uint64(skipped))
	atomic.AddUint64(&m.unitsFailed, uint64(failed))
}

// RecordSessionCreated 记录会话创建。
func (m *Metrics) RecordSessionCreated() {
	atomic.AddUint64(&m.sessionsCreated, 1)
}

// RecordSessionsExpired 记录过期清理的会话数。
func (m *Metrics) RecordSessionsExpired(count int64) {
	if count > 0 {
		atomic.AddUint64(&m.sessionsExpired, uint64(count))
	}
}

// refusalRate 拒答率：拒答次数 / 成功完成的查询次数。
func (m *Metrics) refusalRate() float64 {
	refusals := atomic.LoadUint64(&m.refusalsWholeCorpus) + atomic.LoadUint64(&m.refusalsSelectedText)
	answered := atomic.LoadUint64(&m.queriesTotal) - atomic.LoadUint64(&m.queriesErrors)
	if answered == 0 {
		return 0
	}
	return float64(refusals) / float64(answered)
}

// Export 导出 Prometheus 文本格式指标。
func (m *Metrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	counter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n\n", prefix, name, value))
	}
	gauge := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s gauge\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.6f\n\n", prefix, name, value))
	}

	counter("queries_total", "Total number of queries.", atomic.LoadUint64(&m.queriesTotal))
	counter("queries_cache_hits_total", "Number of cache hits.", atomic.LoadUint64(&m.queriesCacheHits))
	counter("queries_cache_misses_total", "Number of cache misses.", atomic.LoadUint64(&m.queriesCacheMisses))
	counter("queries_errors_total", "Number of query errors.", atomic.LoadUint64(&m.queriesErrors))

	counter("refusals_whole_corpus_total", "Refusals in whole-corpus mode.", atomic.LoadUint64(&m.refusalsWholeCorpus))
	counter("refusals_selected_text_total", "Refusals in selected-text mode.", atomic.LoadUint64(&m.refusalsSelectedText))
	gauge("refusal_rate", "Refusals per answered query (0-1).", m.refusalRate())

	counter("retrieval_total", "Total number of retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	counter("retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()
	gauge("retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)

	counter("llm_calls_total", "Total number of LLM calls.", atomic.LoadUint64(&m.llmCallsTotal))
	counter("llm_calls_errors_total", "Number of LLM call errors.", atomic.LoadUint64(&m.llmCallsErrors))
	gauge("llm_calls_duration_seconds_total", "Total LLM call duration.", llmDuration)

	counter("ingests_total", "Total ingest requests.", atomic.LoadUint64(&m.ingestsTotal))
	counter("ingests_errors_total", "Number of failed ingest requests.", atomic.LoadUint64(&m.ingestsErrors))
	counter("units_stored_total", "Text units stored in the vector index.", atomic.LoadUint64(&m.unitsStored))
	counter("units_skipped_total", "Text units skipped as already stored.", atomic.LoadUint64(&m.unitsSkipped))
	counter("units_failed_total", "Text units that failed ingestion.", atomic.LoadUint64(&m.unitsFailed))

	counter("sessions_created_total", "Query sessions created.", atomic.LoadUint64(&m.sessionsCreated))
	counter("sessions_expired_total", "Query sessions removed by inactivity expiry.", atomic.LoadUint64(&m.sessionsExpired))

	gauge("uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Stats 返回当前统计信息（用于 API）。
func (m *Metrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	llmDuration := m.llmCallsDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.queriesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.queriesCacheMisses)
	cacheTotal := cacheHits + cacheMisses
	cacheHitRate := 0.0
	if cacheTotal > 0 {
		cacheHitRate = float64(cacheHits) / float64(cacheTotal)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	llmTotal := atomic.LoadUint64(&m.llmCallsTotal)
	avgLLMDuration := 0.0
	if llmTotal > 0 {
		avgLLMDuration = llmDuration / float64(llmTotal)
	}

	return map[string]interface{}{
		"queries": map[string]interface{}{
			"total":          atomic.LoadUint64(&m.queriesTotal),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"errors":         atomic.LoadUint64(&m.queriesErrors),
		},
		"refusals": map[string]interface{}{
			"whole_corpus":  atomic.LoadUint64(&m.refusalsWholeCorpus),
			"selected_text": atomic.LoadUint64(&m.refusalsSelectedText),
			"rate":          m.refusalRate(),
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"llm": map[string]interface{}{
			"calls_total":         llmTotal,
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLMDuration,
			"errors":              atomic.LoadUint64(&m.llmCallsErrors),
		},
		"ingestion": map[string]interface{}{
			"requests":      atomic.LoadUint64(&m.ingestsTotal),
			"errors":        atomic.LoadUint64(&m.ingestsErrors),
			"units_stored":  atomic.LoadUint64(&m.unitsStored),
			"units_skipped": atomic.LoadUint64(&m.unitsSkipped),
			"units_failed":  atomic.LoadUint64(&m.unitsFailed),
		},
		"sessions": map[string]interface{}{
			"created": atomic.LoadUint64(&m.sessionsCreated),
			"expired": atomic.LoadUint64(&m.sessionsExpired),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset 重置所有指标（仅用于测试）。
func (m *Metrics) Reset() {
	atomic.StoreUint64(&m.queriesTotal, 0)
	atomic.StoreUint64(&m.queriesCacheHits, 0)
	atomic.StoreUint64(&m.queriesCacheMisses, 0)
	atomic.StoreUint64(&m.queriesErrors, 0)
	atomic.StoreUint64(&m.refusalsWholeCorpus, 0)
	atomic.StoreUint64(&m.refusalsSelectedText, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.llmCallsTotal, 0)
	atomic.StoreUint64(&m.llmCallsErrors, 0)
	atomic.StoreUint64(&m.ingestsTotal, 0)
	atomic.StoreUint64(&m.ingestsErrors, 0)
	atomic.StoreUint64(&m.unitsStored, 0)
	atomic.StoreUint64(&m.unitsSkipped, 0)
	atomic.StoreUint64(&m.unitsFailed, 0)
	atomic.StoreUint64(&m.sessionsCreated, 0)
	atomic.StoreUint64(&m.sessionsExpired, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.llmCallsDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
