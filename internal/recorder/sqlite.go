package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists scan history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so history reads don't block an in-flight scan's write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

var _ Recorder = (*SQLiteRecorder)(nil)

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			scan_id      TEXT PRIMARY KEY,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			range_start  TEXT,
			range_end    TEXT,
			tenkan       INTEGER,
			kijun        INTEGER,
			senkou       INTEGER,
			lookback     INTEGER,
			strict_cross INTEGER,
			symbols      TEXT,
			scanned      INTEGER,
			matched      INTEGER,
			not_matched  INTEGER,
			skipped      INTEGER,
			failed       INTEGER,
			cancelled    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at)`,

		`CREATE TABLE IF NOT EXISTS scan_matches (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			scan_id           TEXT NOT NULL,
			symbol            TEXT NOT NULL,
			date_yesterday    TEXT,
			close_y           REAL,
			cloud_top_y       REAL,
			cloud_bottom_y    REAL,
			distance_pct      REAL,
			avg_dollar_vol_20 REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_scan ON scan_matches(scan_id)`,
	}

	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordScan stores the scan summary and its matches in one transaction.
func (r *SQLiteRecorder) RecordScan(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	strict := 0
	if rec.Config.StrictCross {
		strict = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scans (
			scan_id, started_at, finished_at, range_start, range_end,
			tenkan, kijun, senkou, lookback, strict_cross, symbols,
			scanned, matched, not_matched, skipped, failed, cancelled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ScanID,
		rec.StartedAt.Unix(),
		rec.FinishedAt.Unix(),
		rec.Config.Range.Start.UTC().Format("2006-01-02"),
		rec.Config.Range.End.UTC().Format("2006-01-02"),
		rec.Config.TenkanPeriod,
		rec.Config.KijunPeriod,
		rec.Config.SenkouPeriod,
		rec.Config.Lookback,
		strict,
		strings.Join(rec.Config.Symbols, ","),
		rec.Summary.Scanned,
		rec.Summary.Matched,
		rec.Summary.NotMatched,
		rec.Summary.Skipped,
		rec.Summary.Failed,
		rec.Summary.Cancelled,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}

	for _, res := range rec.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO scan_matches (
				scan_id, symbol, date_yesterday, close_y, cloud_top_y,
				cloud_bottom_y, distance_pct, avg_dollar_vol_20
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ScanID,
			res.Symbol,
			res.DateYesterday.UTC().Format("2006-01-02"),
			res.CloseY,
			res.CloudTopY,
			res.CloudBottomY,
			res.DistancePct,
			res.AvgDollarVol20,
		)
		if err != nil {
			return fmt.Errorf("insert match %s: %w", res.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
