// Package recorder persists completed scan runs so past matches can be
// reviewed after the fact.
package recorder

import (
	"context"
	"time"

	"ichiscan/internal/domain"
)

// Record is one completed scan run.
type Record struct {
	ScanID     string
	Config     *domain.ScanConfig
	Summary    domain.ScanSummary
	Results    []*domain.ScanResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Recorder stores scan history. Implementations must tolerate concurrent
// RecordScan calls from overlapping scans.
type Recorder interface {
	RecordScan(ctx context.Context, rec *Record) error
	Close() error
}
