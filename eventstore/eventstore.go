// Package eventstore implements the append-only AnomalyEvent log: one
// SQLite table with a composite index, behind the narrow
// insert/range/info contract the engine core consumes. Crash recovery is
// this package's responsibility, not the engine core's — the core never
// assumes in-memory storage.
package eventstore

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	mlerrors "github.com/hostml/adengine/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS anomaly_events (
	detector_name    TEXT    NOT NULL,
	detector_version INTEGER NOT NULL,
	host_uuid        BLOB    NOT NULL,
	after_s          INTEGER NOT NULL,
	before_s         INTEGER NOT NULL,
	payload_json     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_anomaly_events_lookup
	ON anomaly_events (detector_name, detector_version, host_uuid, before_s);
`

// Range is one (after, before) tuple as returned by Store.Range.
type Range struct {
	After  int64
	Before int64
}

// Store is the append-only log contract. The engine core depends only on
// this interface, never on *SQLStore directly, so tests can substitute an
// in-memory fake without pulling in cgo/sqlite.
type Store interface {
	Insert(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64, payloadJSON []byte) error
	Range(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([]Range, error)
	Info(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([][]byte, error)
	Close() error
}

// SQLStore is the database/sql + go-sqlite3 backed Store.
type SQLStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed EventStore at dsn
// and ensures its table and index exist.
func Open(dsn string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Open", err)
	}
	return &SQLStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Insert appends one AnomalyEvent row. One transaction per event, no
// batching — database/sql serializes concurrent writers internally.
func (s *SQLStore) Insert(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64, payloadJSON []byte) error {
	const q = `INSERT INTO anomaly_events (detector_name, detector_version, host_uuid, after_s, before_s, payload_json) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, detectorName, detectorVersion, hostUUID[:], after, before, string(payloadJSON))
	if err != nil {
		return mlerrors.Wrap(mlerrors.StorageError, "eventstore.Insert", err)
	}
	return nil
}

// Range returns the (after, before) tuples of every event matching the
// detector identity and host whose window falls within [after, before].
func (s *SQLStore) Range(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([]Range, error) {
	const q = `
		SELECT after_s, before_s FROM anomaly_events
		WHERE detector_name = ? AND detector_version = ? AND host_uuid = ?
		AND after_s >= ? AND before_s <= ?
		ORDER BY before_s`
	rows, err := s.db.QueryContext(ctx, q, detectorName, detectorVersion, hostUUID[:], after, before)
	if err != nil {
		return nil, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Range", err)
	}
	defer rows.Close()

	var out []Range
	for rows.Next() {
		var r Range
		if err := rows.Scan(&r.After, &r.Before); err != nil {
			return nil, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Range", err)
		}
		out = append(out, r)
	}
	return out, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Range", rows.Err())
}

// Info returns the raw payload-json blob of every event matching the
// detector identity and host whose window falls within [after, before].
func (s *SQLStore) Info(ctx context.Context, detectorName string, detectorVersion int, hostUUID uuid.UUID, after, before int64) ([][]byte, error) {
	const q = `
		SELECT payload_json FROM anomaly_events
		WHERE detector_name = ? AND detector_version = ? AND host_uuid = ?
		AND after_s >= ? AND before_s <= ?
		ORDER BY before_s`
	rows, err := s.db.QueryContext(ctx, q, detectorName, detectorVersion, hostUUID[:], after, before)
	if err != nil {
		return nil, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Info", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Info", err)
		}
		out = append(out, []byte(payload))
	}
	return out, mlerrors.Wrap(mlerrors.StorageError, "eventstore.Info", rows.Err())
}
