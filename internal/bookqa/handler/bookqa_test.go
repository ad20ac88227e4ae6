package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/bookqa/internal/bookqa/biz"
	"github.com/kart-io/bookqa/internal/bookqa/handler"
	"github.com/kart-io/bookqa/internal/bookqa/router"
	"github.com/kart-io/bookqa/internal/model"
)

// fakeService 按字段逐个注入各操作的返回值。
type fakeService struct {
	ingestReport *biz.IngestReport
	ingestErr    error
	queryResult  *model.QueryResult
	queryErr     error
	purgeErr     error
	sessionID    string
	sessionErr   error
	turns        []*biz.Turn
	historyErr   error
	stats        map[string]any
	statsErr     error

	lastQuery *biz.QueryRequest
}

func (f *fakeService) Ingest(ctx context.Context, doc *model.Document) (*biz.IngestReport, error) {
	return f.ingestReport, f.ingestErr
}

func (f *fakeService) Query(ctx context.Context, req *biz.QueryRequest) (*model.QueryResult, error) {
	f.lastQuery = req
	return f.queryResult, f.queryErr
}

func (f *fakeService) PurgeSource(ctx context.Context, sourceLocator string) error {
	return f.purgeErr
}

func (f *fakeService) CreateSession(ctx context.Context) (string, error) {
	return f.sessionID, f.sessionErr
}

func (f *fakeService) SessionHistory(ctx context.Context, sessionID string) ([]*biz.Turn, error) {
	return f.turns, f.historyErr
}

func (f *fakeService) Stats(ctx context.Context) (map[string]any, error) {
	return f.stats, f.statsErr
}

func newTestRouter(svc biz.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return router.New(handler.New(svc, nil))
}

func doRequest(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Ingest(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		svc      *fakeService
		wantCode int
	}{
		{
			name: "摄入成功",
			body: `{"source_locator":"book-1","content":"First sentence. Second sentence."}`,
			svc: &fakeService{ingestReport: &biz.IngestReport{
				SourceLocator: "book-1", TotalUnits: 2, Stored: 2,
			}},
			wantCode: http.StatusOK,
		},
		{
			name:     "缺少来源定位符",
			body:     `{"content":"text"}`,
			svc:      &fakeService{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "缺少正文",
			body:     `{"source_locator":"book-1"}`,
			svc:      &fakeService{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "摄入失败",
			body:     `{"source_locator":"book-1","content":"text"}`,
			svc:      &fakeService{ingestErr: assert.AnError},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, newTestRouter(tt.svc), http.MethodPost, "/api/v1/ingest", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHandler_Query(t *testing.T) {
	answered := &model.QueryResult{
		Answer:   "Chapter three covers indexing.",
		ModeUsed: model.ModeWholeCorpus,
	}
	refused := &model.QueryResult{
		Answer:   biz.RefusalWholeCorpus,
		ModeUsed: model.ModeWholeCorpus,
		Refused:  true,
	}

	tests := []struct {
		name     string
		body     string
		svc      *fakeService
		wantCode int
		wantBody string
	}{
		{
			name:     "全库模式回答",
			body:     `{"mode":"whole-corpus","question":"What is in chapter three?"}`,
			svc:      &fakeService{queryResult: answered},
			wantCode: http.StatusOK,
			wantBody: "Chapter three covers indexing.",
		},
		{
			name:     "拒答同样返回 200",
			body:     `{"mode":"whole-corpus","question":"What is quantum gravity?"}`,
			svc:      &fakeService{queryResult: refused},
			wantCode: http.StatusOK,
			wantBody: biz.RefusalWholeCorpus,
		},
		{
			name:     "未知模式被绑定层拒绝",
			body:     `{"mode":"everything","question":"hi"}`,
			svc:      &fakeService{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "缺少问题",
			body:     `{"mode":"whole-corpus"}`,
			svc:      &fakeService{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "业务层参数错误返回 400",
			body:     `{"mode":"whole-corpus","question":"hi","session_id":"s1"}`,
			svc:      &fakeService{queryErr: biz.ErrInvalidRequest},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "供应商临时故障返回 502",
			body:     `{"mode":"whole-corpus","question":"hi"}`,
			svc:      &fakeService{queryErr: &biz.TransientProviderError{Provider: "ollama", Err: assert.AnError}},
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, newTestRouter(tt.svc), http.MethodPost, "/api/v1/query", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_ErrorBodiesHideUpstreamDetail(t *testing.T) {
	t.Run("供应商错误文本不出现在响应体", func(t *testing.T) {
		svc := &fakeService{queryErr: &biz.TransientProviderError{
			Provider: "ollama",
			Err:      errors.New("connect: connection refused 10.0.0.5:11434"),
		}}
		rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/v1/query",
			`{"mode":"whole-corpus","question":"hi"}`)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
		assert.Contains(t, rec.Body.String(), "temporarily unavailable")
	})

	t.Run("内部错误返回统一文案", func(t *testing.T) {
		svc := &fakeService{ingestErr: errors.New("milvus: rpc error code = Unavailable")}
		rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/v1/ingest",
			`{"source_locator":"book-1","content":"text"}`)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "rpc error")
		assert.Contains(t, rec.Body.String(), "internal error")
	})
}

func TestHandler_Query_PassesModeThrough(t *testing.T) {
	svc := &fakeService{queryResult: &model.QueryResult{
		Answer:   "From the selection.",
		ModeUsed: model.ModeSelectedText,
	}}
	body := `{"mode":"selected-text","question":"Which index?","selected_text":"The B-tree index keeps keys sorted for range scans."}`

	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/v1/query", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastQuery)
	assert.Equal(t, model.ModeSelectedText, svc.lastQuery.Mode)
	assert.Equal(t, "Which index?", svc.lastQuery.Question)
	assert.NotEmpty(t, svc.lastQuery.SelectedText)
}

func TestHandler_Sessions(t *testing.T) {
	t.Run("创建会话", func(t *testing.T) {
		svc := &fakeService{sessionID: "01JF5F9QZX"}
		rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/api/v1/sessions", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Data struct {
				SessionID string `json:"session_id"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "01JF5F9QZX", resp.Data.SessionID)
	})

	t.Run("查询历史", func(t *testing.T) {
		svc := &fakeService{turns: []*biz.Turn{
			{Seq: 0, Mode: model.ModeWholeCorpus, Question: "q1", Answer: "a1"},
			{Seq: 1, Mode: model.ModeWholeCorpus, Question: "q2", Answer: "a2"},
		}}
		rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/api/v1/sessions/01JF5F9QZX", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "q2")
	})

	t.Run("会话不存在返回 404", func(t *testing.T) {
		svc := &fakeService{historyErr: biz.ErrSessionNotFound}
		rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/api/v1/sessions/missing", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandler_PurgeSource(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(t, newTestRouter(svc), http.MethodDelete, "/api/v1/sources/book-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_Healthz(t *testing.T) {
	// 未注册任何存储后端时仅报告存活
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandler_Metrics(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeService{}), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
