package model

import (
	"time"

	"gorm.io/gorm"
)

// QuerySession groups the turns of one conversation.
type QuerySession struct {
	// ID is a ULID assigned at creation.
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	// LastActiveAt drives inactivity expiry.
	LastActiveAt time.Time `json:"last_active_at" gorm:"index;autoUpdateTime"`
}

// TableName specifies the table name for QuerySession.
func (QuerySession) TableName() string {
	return "query_sessions"
}

// SessionTurn is one question/answer exchange within a session.
// A selected-text turn never carries whole-corpus retrieval references:
// its SourceRefs stays empty.
type SessionTurn struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string `json:"session_id" gorm:"type:varchar(26);index;not null"`
	// Seq is the turn's position within its session, assigned by the
	// session manager under single-writer append semantics.
	Seq      int    `json:"seq" gorm:"not null"`
	Mode     Mode   `json:"mode" gorm:"type:varchar(16);not null"`
	Question string `json:"question" gorm:"type:text;not null"`
	Answer   string `json:"answer" gorm:"type:text"`
	Refused  bool   `json:"refused" gorm:"default:false"`
	// SourceRefs is a JSON-encoded []UnitSource of the context units used.
	SourceRefs string    `json:"source_refs" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for SessionTurn.
func (SessionTurn) TableName() string {
	return "session_turns"
}

// BeforeCreate stamps LastActiveAt so a freshly created session is not
// immediately expirable.
func (s *QuerySession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.LastActiveAt.IsZero() {
		s.LastActiveAt = time.Now()
	}
	return
}
