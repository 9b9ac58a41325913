// Package journal keeps a durable record of simulation runs.
//
// The CLI driver appends one entry per completed (or aborted) run to a
// bbolt database, keyed by an ascending sequence number. The journal is
// bookkeeping around the boundary, not part of it: the bridge works the
// same with or without one.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fjordsim/fjord/errors"
)

var bucketRuns = []byte("runs")

// Run is one journal entry.
type Run struct {
	ID          uint64    `json:"id"`
	Description string    `json:"description"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Steps       int       `json:"steps"`
	FinalTime   float64   `json:"final_time"`
	Completed   bool      `json:"completed"`
}

// Journal is a bbolt-backed run log.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.IO(errors.PhaseLifecycle, "open journal "+path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.IO(errors.PhaseLifecycle, "create journal bucket", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends a run and returns its assigned sequence number.
func (j *Journal) Record(run Run) (uint64, error) {
	var id uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		run.ID = seq
		raw, err := json.Marshal(run)
		if err != nil {
			return err
		}
		id = seq
		return b.Put(seqKey(seq), raw)
	})
	if err != nil {
		return 0, errors.IO(errors.PhaseLifecycle, "record run", err)
	}
	return id, nil
}

// Runs returns all entries in insertion order.
func (j *Journal) Runs() ([]Run, error) {
	var runs []Run
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(_, v []byte) error {
			var r Run
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			runs = append(runs, r)
			return nil
		})
	})
	if err != nil {
		return nil, errors.IO(errors.PhaseLifecycle, "list runs", err)
	}
	return runs, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}
