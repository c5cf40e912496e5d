package fetcher

import (
	"context"
	"errors"
)

var (
	// ErrItemUnknown means the upstream store does not know the item.
	ErrItemUnknown = errors.New("item not found upstream")
	// ErrPriceUnavailable means the item exists but exposes no price.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrAppNotFound means no app on the store matched a name search.
	ErrAppNotFound = errors.New("no app matches name")
)

// RawPrice is the price exactly as the upstream reported it.
type RawPrice struct {
	ItemID string
	Value  string
	Name   string
}

// App identifies a store app by id and display name.
type App struct {
	ID   string
	Name string
}

// PriceFetcher retrieves the current raw price of an item.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, itemID string) (RawPrice, error)
}
