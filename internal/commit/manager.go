// Package commit manages commit boundaries for long-running ingestion runs,
// so a crash mid-run loses at most one partial batch of writes instead of
// the entire run.
package commit

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
)

// Manager commits a *sql.Tx every BatchSize successful writes instead of
// once at the end of the run, bounding how much work a crash can lose to
// floor(total/BatchSize)*BatchSize persisted rows.
//
// A Manager wraps exactly one transaction at a time; Commit opens a
// replacement transaction via Begin so the caller can keep writing to Tx()
// after a batch boundary.
type Manager struct {
	begin     func() (*sql.Tx, error)
	writeLock *sync.Mutex // Optional; serializes commits with concurrent flush-like writers.
	batchSize int

	mu               sync.Mutex
	tx               *sql.Tx
	uncommittedCount int
	totalCommitted   int
}

// NewManager creates a Manager whose Tx() begins transactions via begin.
// writeLock may be nil; when non-nil it is held for the duration of each
// commit to serialize with concurrent writers sharing the same lock.
func NewManager(begin func() (*sql.Tx, error), writeLock *sync.Mutex, batchSize int) (*Manager, error) {
	if batchSize <= 0 {
		batchSize = 25
	}

	tx, err := begin()
	if err != nil {
		return nil, fmt.Errorf("begin initial transaction: %w", err)
	}

	return &Manager{
		begin:     begin,
		writeLock: writeLock,
		batchSize: batchSize,
		tx:        tx,
	}, nil
}

// Tx returns the transaction writes should currently target. Its identity
// changes across Commit calls, so callers must call Tx() again after
// RecordSuccess/Commit rather than caching the result.
func (m *Manager) Tx() *sql.Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx
}

// UncommittedCount returns the number of writes pending commit.
func (m *Manager) UncommittedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uncommittedCount
}

// TotalCommitted returns the number of writes committed so far across every
// batch.
func (m *Manager) TotalCommitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalCommitted
}

// RecordSuccess notes one more successful write against Tx(). If the batch
// size is reached, it commits immediately and begins the next transaction.
// Returns the number of items committed by this call (0 unless the batch
// boundary was hit).
func (m *Manager) RecordSuccess() (int, error) {
	m.mu.Lock()
	m.uncommittedCount++
	reached := m.uncommittedCount >= m.batchSize
	m.mu.Unlock()

	if reached {
		return m.Commit()
	}
	return 0, nil
}

// Commit forces a commit of the current transaction (if it has pending
// writes) and begins a fresh one. Returns the number of items committed (0
// if nothing was pending).
func (m *Manager) Commit() (int, error) {
	m.mu.Lock()
	if m.uncommittedCount == 0 {
		m.mu.Unlock()
		return 0, nil
	}
	tx := m.tx
	committed := m.uncommittedCount
	m.mu.Unlock()

	if m.writeLock != nil {
		m.writeLock.Lock()
	}
	err := tx.Commit()
	if m.writeLock != nil {
		m.writeLock.Unlock()
	}
	if err != nil {
		return 0, fmt.Errorf("commit batch of %d items: %w", committed, err)
	}

	nextTx, err := m.begin()
	if err != nil {
		return 0, fmt.Errorf("begin next transaction after commit: %w", err)
	}

	m.mu.Lock()
	m.tx = nextTx
	m.uncommittedCount = 0
	m.totalCommitted += committed
	total := m.totalCommitted
	m.mu.Unlock()

	slog.Debug("committed ingestion batch", "batch_items", committed, "total_committed", total)
	return committed, nil
}

// Finalize commits any remaining pending writes. Call this once at the end
// of a run to flush a partial final batch.
func (m *Manager) Finalize() (int, error) {
	return m.Commit()
}
