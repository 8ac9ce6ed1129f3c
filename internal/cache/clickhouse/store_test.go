package clickhouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichiscan/internal/cache"
	"ichiscan/internal/cache/clickhouse"
	"ichiscan/internal/domain"
)

func testSeries(symbol string, r domain.DateRange, n int) *domain.BarSeries {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Date:   r.Start.AddDate(0, 0, i),
			Open:   100 + float64(i),
			High:   101 + float64(i),
			Low:    99 + float64(i),
			Close:  100.5 + float64(i),
			Volume: 1000,
		}
	}
	return &domain.BarSeries{Symbol: symbol, Range: r, Bars: bars}
}

func TestClickhouseStore(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := clickhouse.NewStore(conn)
	store.Now = func() time.Time { return time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC) }

	r := domain.DateRange{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}

	t.Run("miss on empty table", func(t *testing.T) {
		_, err := store.Get(ctx, "AAPL", r)
		require.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("round trip", func(t *testing.T) {
		want := testSeries("AAPL", r, 25)
		require.NoError(t, store.Put(ctx, "AAPL", r, want))

		got, err := store.Get(ctx, "AAPL", r)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", got.Symbol)
		require.Equal(t, want.Len(), got.Len())
		assert.Equal(t, want.Bars[7].Close, got.Bars[7].Close)
		assert.True(t, want.Bars[7].Date.Equal(got.Bars[7].Date))
		require.NoError(t, got.Validate(), "rows come back in date order")
	})

	t.Run("rewrite is read as newest generation", func(t *testing.T) {
		store.Now = func() time.Time { return time.Date(2025, 2, 11, 12, 0, 0, 0, time.UTC) }
		require.NoError(t, store.Put(ctx, "AAPL", r, testSeries("AAPL", r, 5)))

		got, err := store.Get(ctx, "AAPL", r)
		require.NoError(t, err)
		assert.Equal(t, 5, got.Len(), "only the newest stored_at generation is served")
	})

	t.Run("staleness by calendar day", func(t *testing.T) {
		writeDay := time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
		current := domain.DateRange{
			Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		}

		store.Now = func() time.Time { return writeDay }
		require.NoError(t, store.Put(ctx, "MSFT", current, testSeries("MSFT", current, 40)))

		_, err := store.Get(ctx, "MSFT", current)
		require.NoError(t, err)

		store.Now = func() time.Time { return writeDay.AddDate(0, 0, 1) }
		_, err = store.Get(ctx, "MSFT", current)
		require.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx))
		_, err := store.Get(ctx, "AAPL", r)
		require.ErrorIs(t, err, cache.ErrNotFound)
	})
}
