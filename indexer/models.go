package indexer

import (
	"time"

	"gorm.io/gorm"
)

// EventRecord is one committed ledger event. The lookup columns are copied
// out of the attribute map so they can be indexed.
type EventRecord struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Height     uint64 `gorm:"index;not null"`
	Seq        int    `gorm:"not null"`
	TxHash     string `gorm:"size:64;index"`
	Type       string `gorm:"size:64;index;not null"`
	LockboxID  string `gorm:"size:128;index"`
	RequestID  string `gorm:"size:128;index"`
	Node       string `gorm:"size:128;index"`
	Attributes string `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of gorm's pluralisation.
func (EventRecord) TableName() string { return "lockbox_events" }

// AutoMigrate creates or updates the indexer schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
