package models

import (
	"time"

	"gorm.io/gorm"
)

// LedgerEntry holds the cumulative battle points of one canonical identity.
type LedgerEntry struct {
	gorm.Model
	CanonicalIdentity   string `gorm:"uniqueIndex;not null"`
	Handle              string
	ProfitPoints        int64 `gorm:"not null;default:0"`
	VolumePoints        int64 `gorm:"not null;default:0"`
	BattlesParticipated int64 `gorm:"not null;default:0"`
	BattlesWon          int64 `gorm:"not null;default:0"`
}

// LedgerCredit journals one credit per (battle, identity) so retries cannot double-award.
type LedgerCredit struct {
	ID                uint   `gorm:"primaryKey"`
	BattleID          string `gorm:"uniqueIndex:idx_credit_battle_identity;size:36;not null"`
	CanonicalIdentity string `gorm:"uniqueIndex:idx_credit_battle_identity;not null"`
	Kind              string `gorm:"size:16;not null"`
	Points            int64  `gorm:"not null"`
	Won               bool
	CreatedAt         time.Time
}
