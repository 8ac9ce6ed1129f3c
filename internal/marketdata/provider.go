// Package marketdata defines the external OHLCV provider boundary and the
// Yahoo Finance implementation of it.
package marketdata

import (
	"context"
	"time"

	"ichiscan/internal/domain"
)

// Row is one raw OHLCV row as returned by a provider. OHLC fields are
// pointers because providers report holidays and halts as nulls; rows with
// any missing OHLC field are dropped during normalization.
type Row struct {
	Date   time.Time
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume float64
}

// Provider fetches raw OHLCV rows for a symbol over an inclusive date
// range. Providers are treated as untrusted and unreliable: an empty or
// malformed response must surface as an error or an empty slice, never as
// a panic.
type Provider interface {
	Fetch(ctx context.Context, symbol string, r domain.DateRange) ([]Row, error)
}
