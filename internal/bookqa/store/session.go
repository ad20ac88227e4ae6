package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/bookqa/internal/model"
)

type sessions struct {
	db *gorm.DB
}

func newSessions(db *gorm.DB) *sessions {
	return &sessions{db}
}

// Create creates a new query session.
func (s *sessions) Create(ctx context.Context, session *model.QuerySession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

// Get retrieves a session by ID.
// Returns (nil, nil) when no session with that ID exists.
func (s *sessions) Get(ctx context.Context, sessionID string) (*model.QuerySession, error) {
	var session model.QuerySession
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Touch updates a session's last-active timestamp.
func (s *sessions) Touch(ctx context.Context, sessionID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&model.QuerySession{}).
		Where("id = ?", sessionID).
		Update("last_active_at", at).Error
}

// AppendTurn appends one turn to a session. The caller serializes appends
// per session, so Seq values stay dense and in arrival order.
func (s *sessions) AppendTurn(ctx context.Context, turn *model.SessionTurn) error {
	return s.db.WithContext(ctx).Create(turn).Error
}

// ListTurns lists a session's turns in append order.
func (s *sessions) ListTurns(ctx context.Context, sessionID string) ([]*model.SessionTurn, error) {
	var turns []*model.SessionTurn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return turns, nil
}

// NextSeq returns the next turn sequence number for a session.
func (s *sessions) NextSeq(ctx context.Context, sessionID string) (int, error) {
	var maxSeq *int
	err := s.db.WithContext(ctx).
		Model(&model.SessionTurn{}).
		Where("session_id = ?", sessionID).
		Select("MAX(seq)").
		Scan(&maxSeq).Error
	if err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq + 1, nil
}

// DeleteInactiveSince removes sessions whose last activity predates cutoff,
// together with their turns. Returns the number of sessions removed.
func (s *sessions) DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var expired []*model.QuerySession
	if err := s.db.WithContext(ctx).Where("last_active_at < ?", cutoff).Find(&expired).Error; err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, len(expired))
	for i, sess := range expired {
		ids[i] = sess.ID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id IN ?", ids).Delete(&model.SessionTurn{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&model.QuerySession{}).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// 确保 sessions 实现了 SessionStore 接口。
var _ SessionStore = (*sessions)(nil)
var _ IngestUnitStore = (*ingestUnits)(nil)
