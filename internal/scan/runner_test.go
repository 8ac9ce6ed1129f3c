package scan

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ichiscan/internal/cache/memory"
	"ichiscan/internal/domain"
	"ichiscan/internal/loader"
	"ichiscan/internal/marketdata"
	"ichiscan/internal/marketdata/stub"
)

var scanStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestRunner(provider marketdata.Provider) *Runner {
	return NewRunner(Options{
		Loader: loader.New(memory.NewStore(), provider, quietLogger()),
		Logger: quietLogger(),
	})
}

// breakoutRows builds a 105-session series flat at 100 whose final session
// closes at 105: a fresh first-close-above-cloud at the last bar.
func breakoutRows() []marketdata.Row {
	return stub.FlatThenBreakout(scanStart, 104, 1, 100, 105)
}

func rangeFor(sessions int) domain.DateRange {
	return domain.DateRange{Start: scanStart, End: scanStart.AddDate(0, 0, sessions-1)}
}

func TestRunnerMatchesBreakout(t *testing.T) {
	provider := stub.NewProvider()
	provider.SetRows("TST", breakoutRows())
	runner := newTestRunner(provider)

	cfg := &domain.ScanConfig{Symbols: []string{"TST"}, Range: rangeFor(105)}
	outcomes, err := runner.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	o := outcomes["TST"]
	require.NotNil(t, o)
	require.Equal(t, domain.StatusMatched, o.Status)
	require.NotNil(t, o.Result)
	assert.Equal(t, 105.0, o.Result.CloseY)
	assert.Equal(t, 100.0, o.Result.CloudTopY)
	assert.InDelta(t, 5.0, o.Result.DistancePct, 1e-9)
}

func TestRunnerFaultIsolation(t *testing.T) {
	provider := stub.NewProvider()
	provider.SetRows("GOOD", breakoutRows())
	provider.SetErr("BAD", errors.New("upstream exploded"))
	provider.SetRows("THIN", stub.SyntheticRows(scanStart, 10, []float64{100}))
	runner := newTestRunner(provider)

	cfg := &domain.ScanConfig{
		Symbols: []string{"GOOD", "BAD", "THIN"},
		Range:   rangeFor(105),
	}
	outcomes, err := runner.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, outcomes, 3, "every requested symbol accounted exactly once")

	assert.Equal(t, domain.StatusMatched, outcomes["GOOD"].Status)
	assert.Equal(t, domain.StatusFailed, outcomes["BAD"].Status)
	assert.Error(t, outcomes["BAD"].Err)
	assert.Equal(t, domain.StatusSkipped, outcomes["THIN"].Status)
	assert.Contains(t, outcomes["THIN"].Reason, "insufficient history")

	summary := domain.Summarize(outcomes)
	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunnerFilterDemotesToNotMatched(t *testing.T) {
	provider := stub.NewProvider()
	provider.SetRows("TST", breakoutRows())
	runner := newTestRunner(provider)

	cfg := &domain.ScanConfig{
		Symbols:            []string{"TST"},
		Range:              rangeFor(105),
		MinAvgDollarVolume: 1e12,
	}
	outcomes, err := runner.Run(context.Background(), cfg, nil)
	require.NoError(t, err)

	o := outcomes["TST"]
	require.Equal(t, domain.StatusNotMatched, o.Status)
	assert.Contains(t, o.Reason, "filtered out by")
	assert.Nil(t, o.Result)
}

func TestRunnerInvalidConfig(t *testing.T) {
	runner := newTestRunner(stub.NewProvider())

	_, err := runner.Run(context.Background(), &domain.ScanConfig{Range: rangeFor(10)}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidConfig, "empty universe")

	_, err = runner.Run(context.Background(), &domain.ScanConfig{
		Symbols: []string{"TST"},
		Range:   domain.DateRange{Start: scanStart, End: scanStart.AddDate(0, 0, -1)},
	}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidConfig, "inverted range")
}

// blockingProvider parks every fetch until the context is cancelled, so a
// cancellation test can catch symbols both in flight and never started.
type blockingProvider struct{}

func (blockingProvider) Fetch(ctx context.Context, _ string, _ domain.DateRange) ([]marketdata.Row, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunnerCancellation(t *testing.T) {
	runner := newTestRunner(blockingProvider{})
	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"}
	cfg := &domain.ScanConfig{Symbols: symbols, Range: rangeFor(105), Workers: 2}

	ctx, cancel := context.WithCancel(context.Background())
	type runResult struct {
		outcomes map[string]*domain.ScanOutcome
		err      error
	}
	done := make(chan runResult, 1)
	go func() {
		outcomes, err := runner.Run(ctx, cfg, nil)
		done <- runResult{outcomes, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.outcomes, len(symbols), "cancellation must not lose symbols")
		for sym, o := range res.outcomes {
			assert.Equal(t, domain.StatusCancelled, o.Status, "symbol %s", sym)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not drain after cancellation")
	}
}

// panicProvider blows up inside the per-symbol pipeline.
type panicProvider struct{}

func (panicProvider) Fetch(context.Context, string, domain.DateRange) ([]marketdata.Row, error) {
	panic("corrupt response buffer")
}

func TestRunnerRecoversPanic(t *testing.T) {
	runner := newTestRunner(panicProvider{})
	cfg := &domain.ScanConfig{Symbols: []string{"TST"}, Range: rangeFor(105)}

	outcomes, err := runner.Run(context.Background(), cfg, nil)
	require.NoError(t, err)

	o := outcomes["TST"]
	require.NotNil(t, o)
	assert.Equal(t, domain.StatusFailed, o.Status)
	require.Error(t, o.Err)
	assert.Contains(t, o.Err.Error(), "panic")
}

func TestRunnerProgress(t *testing.T) {
	provider := stub.NewProvider()
	provider.SetRows("TST", breakoutRows())
	provider.SetRows("OTH", breakoutRows())
	runner := newTestRunner(provider)

	cfg := &domain.ScanConfig{Symbols: []string{"TST", "OTH"}, Range: rangeFor(105)}
	progress := NewProgress(len(cfg.Symbols))
	_, err := runner.Run(context.Background(), cfg, progress)
	require.NoError(t, err)

	snap := progress.Snapshot()
	assert.Equal(t, 2, snap.Done)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1.0, snap.Fraction)
	assert.Contains(t, snap.Status, "matched")
}
