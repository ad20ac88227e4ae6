package model

import (
	"time"
)

// Ingestion stages recorded per unit. A unit advances chunked → embedded →
// stored; failures keep the last successful stage and a reason.
const (
	StageChunked  = "chunked"
	StageEmbedded = "embedded"
	StageStored   = "stored"
	StageFailed   = "failed"
)

// IngestUnit tracks the last successful ingestion stage of one text unit,
// so interrupted or partially failed runs can resume per unit.
type IngestUnit struct {
	UnitID        string    `json:"unit_id" gorm:"primaryKey;type:varchar(64)"`
	SourceLocator string    `json:"source_locator" gorm:"type:varchar(512);index;not null"`
	SequenceIndex int       `json:"sequence_index" gorm:"default:0"`
	ContentHash   string    `json:"content_hash" gorm:"type:varchar(64)"`
	Stage         string    `json:"stage" gorm:"type:varchar(16);index;not null"`
	FailReason    string    `json:"fail_reason,omitempty" gorm:"type:varchar(512)"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for IngestUnit.
func (IngestUnit) TableName() string {
	return "ingest_units"
}
