package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemLedger is an in-memory Ledger for tests and dry runs.
type MemLedger struct {
	mu      sync.Mutex
	runs    []*Run
	results map[int64][]Contribution
	now     func() time.Time
}

// NewMemLedger returns an empty MemLedger.
func NewMemLedger() *MemLedger {
	return &MemLedger{results: make(map[int64][]Contribution), now: time.Now}
}

func (m *MemLedger) StartRun(command, chainMode, policy string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := int64(len(m.runs) + 1)
	m.runs = append(m.runs, &Run{ID: id, Command: command, ChainMode: chainMode, Policy: policy, StartedAt: m.now().UTC()})
	return id, nil
}

func (m *MemLedger) run(id int64) (*Run, error) {
	if id < 1 || int(id) > len(m.runs) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	return m.runs[id-1], nil
}

func (m *MemLedger) RecordContribution(c Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.run(c.RunID); err != nil {
		return err
	}
	m.results[c.RunID] = append(m.results[c.RunID], c)
	return nil
}

func (m *MemLedger) FinishRun(runID int64, t RunTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.run(runID)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, ErrRunNotFound)
	}
	r.FinishedAt = m.now().UTC()
	r.Verified, r.Failed, r.Errored = t.Verified, t.Failed, t.Errored
	r.Fetched, r.SyncFailed, r.ExitCode = t.Fetched, t.SyncFailed, t.ExitCode
	return nil
}

func (m *MemLedger) GetRun(runID int64) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.run(runID)
	if err != nil {
		return nil, err
	}
	cp := *r
	return &cp, nil
}

func (m *MemLedger) ListRuns(limit int) ([]*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *m.runs[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemLedger) ListContributions(runID int64) ([]*Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.results[runID]
	out := make([]*Contribution, len(src))
	for i := range src {
		c := src[i]
		out[i] = &c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemLedger) Close() error { return nil }
