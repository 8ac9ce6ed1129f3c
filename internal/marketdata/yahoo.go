package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"ichiscan/internal/domain"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooProvider implements Provider using the Yahoo Finance v8 chart API.
type YahooProvider struct {
	BaseURL string
	Client  *http.Client

	// MaxRetries bounds the backoff-wrapped retry loop per fetch.
	MaxRetries uint64
}

// NewYahooProvider creates a Yahoo Finance provider with sane timeouts.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		BaseURL: defaultYahooBaseURL,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		MaxRetries: 3,
	}
}

var _ Provider = (*YahooProvider)(nil)

// yahooChart is the response structure from the Yahoo Finance chart API.
// Quote arrays use pointers so that nulls (holidays, halts) survive
// decoding and can be dropped downstream.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves daily rows for [r.Start, r.End], retrying transient
// failures with exponential backoff.
func (p *YahooProvider) Fetch(ctx context.Context, symbol string, r domain.DateRange) ([]Row, error) {
	var rows []Row

	op := func() error {
		var err error
		rows, err = p.fetchChart(ctx, symbol, r)
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, symbol string, r domain.DateRange) ([]Row, error) {
	// period2 is exclusive in the chart API, so push it past the end day.
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		p.BaseURL, url.PathEscape(symbol),
		r.Start.UTC().Unix(), r.End.UTC().Add(24*time.Hour).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		// Unknown symbol, retrying will not help.
		return nil, backoff.Permanent(fmt.Errorf("yahoo: symbol %s not found", symbol))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, backoff.Permanent(fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description))
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	rows := make([]Row, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		var volume float64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		rows = append(rows, Row{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   quote.Open[i],
			High:   quote.High[i],
			Low:    quote.Low[i],
			Close:  quote.Close[i],
			Volume: volume,
		})
	}
	return rows, nil
}
