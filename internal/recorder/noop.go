package recorder

import "context"

// NoopRecorder discards all records. Used when no history database is
// configured.
type NoopRecorder struct{}

// NewNoopRecorder creates a recorder that drops everything.
func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

var _ Recorder = (*NoopRecorder)(nil)

func (*NoopRecorder) RecordScan(context.Context, *Record) error { return nil }

func (*NoopRecorder) Close() error { return nil }
