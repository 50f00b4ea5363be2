package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const pendingBucket = "pending"

// job is one scheduled delivery attempt. Jobs for the same retry chain share
// ChainID; Attempt increments per retry.
type job struct {
	ChainID   string          `json:"chainId"`
	WebhookID string          `json:"webhookId"`
	Event     string          `json:"event"`
	Body      json.RawMessage `json:"body"`
	Attempt   int             `json:"attempt"`
	Due       time.Time       `json:"due"`
}

// Journal persists scheduled delivery attempts in bbolt so retries pending
// at shutdown resume on the next start.
type Journal struct {
	db *bolt.DB
}

// OpenJournal opens or creates the journal file.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open webhook journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(pendingBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Put records a scheduled attempt, replacing any prior entry for the chain.
func (j *Journal) Put(entry job) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).Put([]byte(entry.ChainID), data)
	})
}

// Delete removes the chain's pending entry once it reached a terminal state.
func (j *Journal) Delete(chainID string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).Delete([]byte(chainID))
	})
}

// Pending returns every journaled attempt.
func (j *Journal) Pending() ([]job, error) {
	var jobs []job
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).ForEach(func(k, v []byte) error {
			var entry job
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal journal entry %s: %w", k, err)
			}
			jobs = append(jobs, entry)
			return nil
		})
	})
	return jobs, err
}
