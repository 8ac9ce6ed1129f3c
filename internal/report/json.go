package report

import (
	"encoding/json"
	"fmt"
	"time"

	"ichiscan/internal/domain"
)

// Document is the structured export form of one scan.
type Document struct {
	ScanDate time.Time            `json:"scan_date"`
	Summary  domain.ScanSummary   `json:"summary"`
	Results  []*domain.ScanResult `json:"results"`
}

// RenderJSON renders the scan document with indentation for human
// consumption.
func RenderJSON(scanDate time.Time, summary domain.ScanSummary, results []*domain.ScanResult) ([]byte, error) {
	doc := Document{
		ScanDate: scanDate.UTC(),
		Summary:  summary,
		Results:  results,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode scan document: %w", err)
	}
	return data, nil
}
