package fetcher

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PriceFetcher retrieves the latest quote price for one subject.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, subjectID string) (decimal.Decimal, json.RawMessage, error)
}
