package eventstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// memRow is one stored event, kept exactly as inserted.
type memRow struct {
	detectorName    string
	detectorVersion int
	hostUUID        uuid.UUID
	after, before   int64
	payload         []byte
}

// MemStore is an in-memory Store guarded by a single mutex. It exists for
// tests that want the Store contract without a cgo sqlite3 dependency;
// SQLStore is the durable implementation deployments use.
type MemStore struct {
	mu   sync.Mutex
	rows []memRow
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (s *MemStore) Insert(_ context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64, payloadJSON []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := make([]byte, len(payloadJSON))
	copy(payload, payloadJSON)
	s.rows = append(s.rows, memRow{detectorName, detectorVersion, hostUUID, after, before, payload})
	return nil
}

func (s *MemStore) Range(_ context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([]Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Range
	for _, r := range s.rows {
		if s.matches(r, detectorName, detectorVersion, hostUUID, after, before) {
			out = append(out, Range{After: r.after, Before: r.before})
		}
	}
	return out, nil
}

func (s *MemStore) Info(_ context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, r := range s.rows {
		if s.matches(r, detectorName, detectorVersion, hostUUID, after, before) {
			out = append(out, r.payload)
		}
	}
	return out, nil
}

func (s *MemStore) matches(r memRow, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) bool {
	return r.detectorName == detectorName &&
		r.detectorVersion == detectorVersion &&
		r.hostUUID == hostUUID &&
		r.after >= after &&
		r.before <= before
}

func (s *MemStore) Close() error { return nil }
