package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is an entry of the watch-list.
type Item struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// PriceObservation is one row of the append-only price ledger.
type PriceObservation struct {
	ID          int64           `json:"id"`
	ItemID      string          `json:"item_id"`
	Price       decimal.Decimal `json:"price"`
	LowestPrice decimal.Decimal `json:"lowest_price"`
	ObservedAt  time.Time       `json:"observed_at"`
}

// AlertRecord audits one dispatch attempt.
type AlertRecord struct {
	ID         int64           `json:"id"`
	ItemID     string          `json:"item_id"`
	ObservedAt time.Time       `json:"observed_at"`
	Price      decimal.Decimal `json:"price"`
	Reasons    []string        `json:"reasons"`
	Channels   []string        `json:"channels"`
	Delivered  bool            `json:"delivered"`
	Error      *string         `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
