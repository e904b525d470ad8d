package models

import (
	"strings"
	"time"

	"pnl-arena/internal/identity"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeRecord is a submitted trade outcome. Records are append-only; corrections are new rows.
type TradeRecord struct {
	gorm.Model
	IdentityRaw       string          `json:"identity_raw" gorm:"not null"`
	CanonicalIdentity string          `json:"-" gorm:"index;not null"`
	AccountID         string          `json:"account_id,omitempty" gorm:"index"`
	Asset             string          `json:"asset" gorm:"index;size:20;not null"`
	InvestedAmount    decimal.Decimal `json:"invested_amount" gorm:"type:text;not null"`
	ProfitAmount      decimal.Decimal `json:"profit_amount" gorm:"type:text;not null"`
	OccurredAt        time.Time       `json:"occurred_at" gorm:"index;not null"`
}

// BeforeCreate derives the indexed canonical identity and normalizes the record.
func (t *TradeRecord) BeforeCreate(tx *gorm.DB) error {
	t.CanonicalIdentity = identity.Canonicalize(t.IdentityRaw)
	t.AccountID = strings.TrimSpace(t.AccountID)
	t.Asset = strings.ToUpper(t.Asset)
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now()
	}
	t.OccurredAt = t.OccurredAt.UTC()
	return nil
}
