// Package diagnostics persists a write-only, append-only summary of
// each completed run for postmortem inspection. It is never read back
// into a running engine: there is no event replay or crash recovery
// here, only a log a human (or another tool) can open afterward.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// RunSummary is one engine run's postmortem record.
type RunSummary struct {
	RunID            string    `json:"run_id"`
	Scenario         string    `json:"scenario"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	StartTagNanos    int64     `json:"start_tag_nanos"`
	EndTagNanos      int64     `json:"end_tag_nanos"`
	ReactionsRun     int64     `json:"reactions_run"`
	DeadlineMisses   int64     `json:"deadline_misses"`
	STPViolations    int64     `json:"stp_violations"`
	Err              string    `json:"error,omitempty"`
}

// Store is the BoltDB-backed diagnostics sink.
type Store struct {
	db *bbolt.DB
}

// Open creates or opens the diagnostics database at path, ensuring its
// one bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open boltdb: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("diagnostics: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record writes one run summary, keyed by its RunID, generating a fresh
// one when the summary carries none, and returns that ID. It never reads
// the bucket back out for use by the engine.
func (s *Store) Record(summary RunSummary) (string, error) {
	if summary.RunID == "" {
		summary.RunID = uuid.NewString()
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("diagnostics: marshal summary: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(summary.RunID), data)
	})
	if err != nil {
		return "", fmt.Errorf("diagnostics: write summary: %w", err)
	}
	return summary.RunID, nil
}

// List returns every recorded run summary, for a human operator
// inspecting a diagnostics file after the fact (e.g. via reactorctl
// inspect). The engine itself never calls this.
func (s *Store) List() ([]RunSummary, error) {
	var out []RunSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var rs RunSummary
			if err := json.Unmarshal(v, &rs); err != nil {
				return err
			}
			out = append(out, rs)
			return nil
		})
	})
	return out, err
}
