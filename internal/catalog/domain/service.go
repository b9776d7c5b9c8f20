package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrItemNotFound = errors.New("item_not_found")
	ErrTaxNotFound  = errors.New("tax_not_found")
)

// PriceSource resolves current catalog prices for invoice materialization.
type PriceSource interface {
	GetPrice(ctx context.Context, ownerID, itemID snowflake.ID) (int64, error)
	GetPrices(ctx context.Context, ownerID snowflake.ID, itemIDs []snowflake.ID) (map[snowflake.ID]int64, error)
}

// TaxSource resolves a tax rate in basis points. A nil tax id means no
// tax, which callers treat as a zero rate.
type TaxSource interface {
	GetTaxRate(ctx context.Context, ownerID, taxID snowflake.ID) (int64, error)
}

type Service interface {
	PriceSource
	TaxSource
	GetItem(ctx context.Context, ownerID, itemID snowflake.ID) (*Item, error)
}
