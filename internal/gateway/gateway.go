// Package gateway defines the boundary to the vendor market-data API.
// The store and the update batch depend only on this interface;
// transports live in subpackages.
package gateway

import (
	"context"
	"time"

	"github.com/lukefun/Q-System/internal/marketdata"
)

// Gateway fetches raw market data from the vendor. Implementations
// wrap transport failures in *marketdata.ConnectionError so callers
// can distinguish flaky networks from bad data.
//
// FetchBars returns bars in [from, to]; both bounds are inclusive and
// the result may be empty. Implementations must not return bars for a
// different instrument code.
type Gateway interface {
	FetchBars(ctx context.Context, code string, typ marketdata.SeriesType, from, to time.Time) ([]marketdata.Bar, error)
	FetchAdjustmentFactors(ctx context.Context, code string) ([]marketdata.AdjustmentFactor, error)
	FetchFundamentals(ctx context.Context, code string) ([]marketdata.FundamentalRecord, error)
	FetchClassifications(ctx context.Context) ([]marketdata.Classification, error)
}
