package scan

import "sync"

// Snapshot is one observation of scan progress.
type Snapshot struct {
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
	Status   string  `json:"status"`
}

// Progress tracks symbols completed out of total plus a human-readable
// status line. It is safe for concurrent use; subscribers receive
// best-effort snapshots (slow consumers miss intermediate updates, never
// block the scan).
type Progress struct {
	mu     sync.Mutex
	done   int
	total  int
	status string
	subs   []chan Snapshot
}

// NewProgress creates a tracker for total symbols.
func NewProgress(total int) *Progress {
	return &Progress{total: total, status: "pending"}
}

// Complete records one finished symbol and updates the status line.
func (p *Progress) Complete(status string) {
	p.mu.Lock()
	p.done++
	p.status = status
	snap := p.snapshotLocked()
	subs := p.subs
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// SetStatus updates the status line without advancing the counter.
func (p *Progress) SetStatus(status string) {
	p.mu.Lock()
	p.status = status
	snap := p.snapshotLocked()
	subs := p.subs
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Snapshot returns the current progress.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Subscribe registers a snapshot channel. The returned cancel function
// removes the subscription.
func (p *Progress) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)

	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, c := range p.subs {
			if c == ch {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

func (p *Progress) snapshotLocked() Snapshot {
	frac := 0.0
	if p.total > 0 {
		frac = float64(p.done) / float64(p.total)
	}
	return Snapshot{Done: p.done, Total: p.total, Fraction: frac, Status: p.status}
}
