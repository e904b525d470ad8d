package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Battle lifecycle states. Completed and cancelled are terminal.
const (
	BattleActive    = "active"
	BattleCompleted = "completed"
	BattleCancelled = "cancelled"
)

// Battle kinds. Profit scores total profit, volume scores trade count.
const (
	KindProfit = "profit"
	KindVolume = "volume"
)

// Battle is a time-boxed competition among a fixed participant set.
// Result holds the ranked outcome as JSON once the battle is completed.
type Battle struct {
	gorm.Model
	BattleID     string         `gorm:"uniqueIndex;size:36;not null"`
	Kind         string         `gorm:"size:16;not null"`
	Creator      string         `gorm:"size:64"`
	StartAt      time.Time      `gorm:"not null"`
	EndAt        time.Time      `gorm:"index;not null"`
	Status       string         `gorm:"index;size:16;not null"`
	Result       datatypes.JSON `gorm:"type:json"`
	CompletedAt  *time.Time
	Participants []BattleParticipant `gorm:"foreignKey:BattleID;references:BattleID"`
}

// BattleParticipant is one seat in a battle, keyed by canonical identity.
type BattleParticipant struct {
	ID                uint   `gorm:"primaryKey"`
	BattleID          string `gorm:"uniqueIndex:idx_battle_identity;size:36;not null"`
	CanonicalIdentity string `gorm:"uniqueIndex:idx_battle_identity;index;not null"`
	Handle            string `gorm:"not null"`
	Seat              int    `gorm:"not null"`
}
