package biz

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/bookqa/internal/bookqa/store"
	"github.com/kart-io/bookqa/internal/model"
	"github.com/kart-io/bookqa/pkg/utils/json"
)

// ErrSessionNotFound 表示会话不存在或已因不活跃被清理。
var ErrSessionNotFound = errors.New("session not found")

// SessionManagerConfig 会话管理配置。
type SessionManagerConfig struct {
	// InactivityTTL 会话不活跃过期时长。
	InactivityTTL time.Duration
	// SweepInterval 过期清扫周期。
	SweepInterval time.Duration
}

// Turn 是对外暴露的只读会话轮次。
type Turn struct {
	Seq      int                `json:"seq"`
	Mode     model.Mode         `json:"mode"`
	Question string             `json:"question"`
	Answer   string             `json:"answer"`
	Refused  bool               `json:"refused"`
	Sources  []model.UnitSource `json:"sources,omitempty"`
	AskedAt  time.Time          `json:"asked_at"`
}

// SessionManager 管理查询会话的生命周期与历史追加。
//
// 追加是单写者语义：同一会话的并发追加通过按会话 ID 分的互斥锁
// 串行化，轮次序号因此严格递增无空洞。历史对外只读，选中文本
// 轮次不携带全库检索引用。
type SessionManager struct {
	sessions store.SessionStore
	config   *SessionManagerConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewSessionManager 创建会话管理器。
func NewSessionManager(sessions store.SessionStore, config *SessionManagerConfig) *SessionManager {
	if config.InactivityTTL <= 0 {
		config.InactivityTTL = 30 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 5 * time.Minute
	}
	return &SessionManager{
		sessions:  sessions,
		config:    config,
		locks:     make(map[string]*sync.Mutex),
		stopSweep: make(chan struct{}),
	}
}

// Create 创建新会话并返回其 ID。
func (m *SessionManager) Create(ctx context.Context) (string, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	session := &model.QuerySession{ID: id}
	if err := m.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// Get 返回会话元信息，不存在时返回 ErrSessionNotFound。
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*model.QuerySession, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// AppendTurn 追加一条轮次并刷新会话活跃时间。
//
// 选中文本模式的轮次不写入检索引用，sources 参数被忽略。
func (m *SessionManager) AppendTurn(
	ctx context.Context,
	sessionID string,
	mode model.Mode,
	question, answer string,
	refused bool,
	sources []model.UnitSource,
) (*Turn, error) {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	lock := m.sessionLock(session.ID)
	lock.Lock()
	defer lock.Unlock()

	seq, err := m.sessions.NextSeq(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate turn seq: %w", err)
	}

	if mode == model.ModeSelectedText {
		sources = nil
	}
	refs := "[]"
	if len(sources) > 0 {
		encoded, err := json.Marshal(sources)
		if err != nil {
			return nil, fmt.Errorf("failed to encode source refs: %w", err)
		}
		refs = string(encoded)
	}

	now := time.Now()
	turn := &model.SessionTurn{
		SessionID:  session.ID,
		Seq:        seq,
		Mode:       mode,
		Question:   question,
		Answer:     answer,
		Refused:    refused,
		SourceRefs: refs,
		CreatedAt:  now,
	}
	if err := m.sessions.AppendTurn(ctx, turn); err != nil {
		return nil, fmt.Errorf("failed to append session turn: %w", err)
	}
	if err := m.sessions.Touch(ctx, session.ID, now); err != nil {
		logger.Warnw("failed to touch session", "session", session.ID, "error", err.Error())
	}

	return &Turn{
		Seq:      seq,
		Mode:     mode,
		Question: question,
		Answer:   answer,
		Refused:  refused,
		Sources:  sources,
		AskedAt:  now,
	}, nil
}

// History 返回会话的全部轮次，按追加顺序排列。
func (m *SessionManager) History(ctx context.Context, sessionID string) ([]*Turn, error) {
	if _, err := m.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	records, err := m.sessions.ListTurns(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session turns: %w", err)
	}

	turns := make([]*Turn, 0, len(records))
	for _, rec := range records {
		turn := &Turn{
			Seq:      rec.Seq,
			Mode:     rec.Mode,
			Question: rec.Question,
			Answer:   rec.Answer,
			Refused:  rec.Refused,
			AskedAt:  rec.CreatedAt,
		}
		if rec.SourceRefs != "" && rec.SourceRefs != "[]" {
			if err := json.Unmarshal([]byte(rec.SourceRefs), &turn.Sources); err != nil {
				logger.Warnw("failed to decode source refs", "session", sessionID, "seq", rec.Seq, "error", err.Error())
			}
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// StartSweeper 启动后台清扫：周期性删除超过不活跃时限的会话。
// 随 ctx 取消或 StopSweeper 调用退出。
func (m *SessionManager) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopSweep:
				return
			case <-ticker.C:
				m.sweepExpired(ctx)
			}
		}
	}()
}

// StopSweeper 停止后台清扫。
func (m *SessionManager) StopSweeper() {
	m.sweepOnce.Do(func() {
		close(m.stopSweep)
	})
}

func (m *SessionManager) sweepExpired(ctx context.Context) {
	cutoff := time.Now().Add(-m.config.InactivityTTL)
	deleted, err := m.sessions.DeleteInactiveSince(ctx, cutoff)
	if err != nil {
		logger.Warnw("session sweep failed", "error", err.Error())
		return
	}
	if deleted > 0 {
		logger.Infow("expired sessions removed", "count", deleted)
	}
}

func (m *SessionManager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}
