// Package report renders scan results for export.
package report

import (
	"fmt"
	"strings"

	"ichiscan/internal/domain"
)

// RenderCSV renders matched results as CSV. The header is the export
// contract consumed by the CLI and dashboard.
func RenderCSV(results []*domain.ScanResult) string {
	var sb strings.Builder

	sb.WriteString("symbol,date_yesterday,close_y,cloud_top_y,distance_pct,avg_dollar_vol_20\n")

	for _, r := range results {
		sb.WriteString(fmt.Sprintf("%s,%s,%.4f,%.4f,%.4f,%.2f\n",
			r.Symbol,
			r.DateYesterday.UTC().Format("2006-01-02"),
			r.CloseY,
			r.CloudTopY,
			r.DistancePct,
			r.AvgDollarVol20,
		))
	}

	return sb.String()
}
