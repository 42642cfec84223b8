package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/boltdb/bolt"
)

const historyBucket = "history"

// ErrRecordNotFound is returned when a history record does not exist.
var ErrRecordNotFound = errors.New("history record not found")

// Record is one finished download job as kept in the history store.
// This is bookkeeping only; partial transfers are never resumed from it.
type Record struct {
	ID         string    `json:"id"`
	GameTitle  string    `json:"game_title,omitempty"`
	TitleID    string    `json:"title_id,omitempty"`
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	Path       string    `json:"path"`
	TotalBytes int64     `json:"total_bytes"`
	Downloaded int64     `json:"downloaded"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// BoltRepository stores download history in a BoltDB file.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository opens (or creates) the history database at dbPath.
func NewBoltRepository(dbPath string) (*BoltRepository, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(historyBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history bucket: %w", err)
	}

	return &BoltRepository{db: db}, nil
}

// Save persists a record, overwriting any previous one with the same id.
func (r *BoltRepository) Save(record *Record) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		if err := bucket.Put([]byte(record.ID), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		return nil
	})
}

// Find retrieves a record by id.
func (r *BoltRepository) Find(id string) (*Record, error) {
	var record *Record

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrRecordNotFound
		}

		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// FindAll retrieves every record, most recent first.
func (r *BoltRepository) FindAll() ([]*Record, error) {
	var records []*Record

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].FinishedAt.After(records[j].FinishedAt)
	})

	return records, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *BoltRepository) Delete(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		return bucket.Delete([]byte(id))
	})
}

// Close closes the underlying database.
func (r *BoltRepository) Close() error {
	return r.db.Close()
}
