package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used by the relational backend.
type BookModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"uniqueIndex;not null"`
	Author      string
	Topic       string
	SourceFile  string
	TotalQuotes int               `gorm:"not null;default:0"`
	ProcessedAt time.Time         `gorm:"not null"`
	CreatedAt   time.Time         `gorm:"not null;index"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
}

type QuoteModel struct {
	ID             string     `gorm:"primaryKey"`
	BookID         string     `gorm:"not null;index"`
	Book           *BookModel `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
	PageNumber     int        `gorm:"not null"`
	OriginalText   string
	QuoteText      string `gorm:"not null"`
	TranslatedText string
	Summary        string
	Category       string `gorm:"index"`
	Style          string
	TargetAudience string

	IsEngaging     bool    `gorm:"not null;default:false"`
	QualityScore   float64 `gorm:"not null;index;default:0"`
	Completeness   float64 `gorm:"not null;default:0"`
	Clarity        float64 `gorm:"not null;default:0"`
	PracticalValue float64 `gorm:"not null;default:0"`
	Length         int     `gorm:"not null;default:0"`

	Published   bool `gorm:"not null;index;default:false"`
	PublishedAt *time.Time
	CreatedAt   time.Time         `gorm:"not null;index"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb"`
}
