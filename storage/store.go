// Package storage persists processing outcomes so operators can query
// what the pipeline decided for any event after the fact.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/yairfalse/reitti/types"
)

// Bucket names in bbolt
var (
	bucketOutcomes = []byte("outcomes")
	bucketMeta     = []byte("meta")
)

var keyLastSeq = []byte("last_seq")

// OutcomeRecord is the persisted result of one processed event
type OutcomeRecord struct {
	Sequence  int64                  `json:"sequence"`
	EventID   string                 `json:"event_id"`
	BatchID   string                 `json:"batch_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Plan      *types.ActionPlan      `json:"plan"`
	Results   []types.DispatchResult `json:"results"`
}

// recordRef is the in-memory index entry, ordered by sequence
type recordRef struct {
	Sequence int64
	EventID  string
	BatchID  string
}

// Store keeps outcome records on disk with an in-memory sequence index
// for recent and per-batch listings.
type Store struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	index *btree.BTreeG[*recordRef]
	byID  map[string]*recordRef
	seq   int64
}

// Open creates or opens an outcome store at the given path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketOutcomes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{
		db: db,
		index: btree.NewG[*recordRef](32, func(a, b *recordRef) bool {
			return a.Sequence < b.Sequence
		}),
		byID: make(map[string]*recordRef),
	}

	if err := store.rebuild(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// rebuild loads the sequence counter and index from disk
func (s *Store) rebuild() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(keyLastSeq); len(raw) == 8 {
			s.seq = int64(binary.BigEndian.Uint64(raw))
		}

		return tx.Bucket(bucketOutcomes).ForEach(func(k, v []byte) error {
			var record OutcomeRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return nil // skip unreadable records
			}
			ref := &recordRef{
				Sequence: record.Sequence,
				EventID:  record.EventID,
				BatchID:  record.BatchID,
			}
			s.index.ReplaceOrInsert(ref)
			s.byID[ref.EventID] = ref
			return nil
		})
	})
}

// RecordOutcome persists the outcome of one processed event. Recording
// the same event twice overwrites the previous record.
func (s *Store) RecordOutcome(record *OutcomeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.EventID == "" {
		return 0, fmt.Errorf("outcome record requires an event ID")
	}

	s.seq++
	record.Sequence = s.seq
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketOutcomes).Put([]byte(record.EventID), value); err != nil {
			return err
		}

		seqBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBytes, uint64(s.seq))
		return tx.Bucket(bucketMeta).Put(keyLastSeq, seqBytes)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record outcome: %w", err)
	}

	// A re-recorded event keeps only its latest index entry
	if old, ok := s.byID[record.EventID]; ok {
		s.index.Delete(old)
	}
	ref := &recordRef{
		Sequence: record.Sequence,
		EventID:  record.EventID,
		BatchID:  record.BatchID,
	}
	s.index.ReplaceOrInsert(ref)
	s.byID[record.EventID] = ref
	return record.Sequence, nil
}

// GetOutcome returns the stored record for an event, or nil when the
// event was never recorded.
func (s *Store) GetOutcome(eventID string) (*OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var record *OutcomeRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketOutcomes).Get([]byte(eventID))
		if raw == nil {
			return nil
		}
		record = &OutcomeRecord{}
		return json.Unmarshal(raw, record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load outcome: %w", err)
	}
	return record, nil
}

// ListRecent returns up to n records, newest first
func (s *Store) ListRecent(n int) ([]*OutcomeRecord, error) {
	s.mu.RLock()
	ids := make([]string, 0, n)
	s.index.Descend(func(ref *recordRef) bool {
		ids = append(ids, ref.EventID)
		return len(ids) < n
	})
	s.mu.RUnlock()

	return s.loadAll(ids)
}

// ListBatch returns every record from one batch in processing order
func (s *Store) ListBatch(batchID string) ([]*OutcomeRecord, error) {
	s.mu.RLock()
	var ids []string
	s.index.Ascend(func(ref *recordRef) bool {
		if ref.BatchID == batchID {
			ids = append(ids, ref.EventID)
		}
		return true
	})
	s.mu.RUnlock()

	return s.loadAll(ids)
}

func (s *Store) loadAll(ids []string) ([]*OutcomeRecord, error) {
	records := make([]*OutcomeRecord, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOutcomes)
		for _, id := range ids {
			raw := bucket.Get([]byte(id))
			if raw == nil {
				continue
			}
			var record OutcomeRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				continue
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of stored records
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}
