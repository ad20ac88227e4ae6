package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/kart-io/bookqa/internal/model"
)

// Factory defines the factory interface for the relational stores.
type Factory interface {
	IngestUnits() IngestUnitStore
	Sessions() SessionStore
	Close() error
}

// IngestUnitStore persists per-unit ingestion stage state for resumable
// re-ingestion.
type IngestUnitStore interface {
	Save(ctx context.Context, unit *model.IngestUnit) error
	Get(ctx context.Context, unitID string) (*model.IngestUnit, error)
	ListBySource(ctx context.Context, sourceLocator string) ([]*model.IngestUnit, error)
	DeleteBySource(ctx context.Context, sourceLocator string) error
}

// SessionStore persists query sessions and their turns.
type SessionStore interface {
	Create(ctx context.Context, session *model.QuerySession) error
	Get(ctx context.Context, sessionID string) (*model.QuerySession, error)
	Touch(ctx context.Context, sessionID string, at time.Time) error
	AppendTurn(ctx context.Context, turn *model.SessionTurn) error
	ListTurns(ctx context.Context, sessionID string) ([]*model.SessionTurn, error)
	NextSeq(ctx context.Context, sessionID string) (int, error)
	DeleteInactiveSince(ctx context.Context, cutoff time.Time) (int64, error)
}

type datastore struct {
	db *gorm.DB
}

// NewFactory creates a store Factory backed by the given gorm DB.
// It migrates the ingestion-state and session tables on startup.
func NewFactory(db *gorm.DB) (Factory, error) {
	if err := db.AutoMigrate(&model.IngestUnit{}, &model.QuerySession{}, &model.SessionTurn{}); err != nil {
		return nil, err
	}
	return &datastore{db: db}, nil
}

func (ds *datastore) IngestUnits() IngestUnitStore {
	return newIngestUnits(ds.db)
}

func (ds *datastore) Sessions() SessionStore {
	return newSessions(ds.db)
}

func (ds *datastore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
