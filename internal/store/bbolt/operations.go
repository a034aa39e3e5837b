package bbolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/loog-project/nmldiff/internal/store"
	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// SetSnapshot stores a tree snapshot under label and assigns its ID.
func (s *Store) SetSnapshot(
	_ context.Context,
	label string,
	snapshot *store.Snapshot,
) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		revNum, err := s.claimNextRevision(tx, counterSnapshot+label)
		if err != nil {
			return err
		}
		snapshot.ID = revNum
		snapshot.Label = label

		payload, err := s.codec.Marshal(snapshot)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSnapshots).Put(keyObjectRevision(label, revNum), payload)
	})
}

func (s *Store) GetSnapshot(_ context.Context, label string, revID store.RevisionID) (*store.Snapshot, error) {
	var snapshot store.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get(keyObjectRevision(label, revID))
		if v == nil {
			return store.ErrNotFound
		}
		return s.codec.Unmarshal(v, &snapshot)
	})
	if err != nil {
		return nil, err
	}
	// msgpack hands back the narrowest integer width
	tree, err := diffmap.NormalizeTree(snapshot.Tree)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s@%s: %w", label, revID, err)
	}
	snapshot.Tree = tree
	return &snapshot, nil
}

// SetRecord stores a diff record under name, assigns its ID and links it to
// the previous record of the same name.
func (s *Store) SetRecord(
	_ context.Context,
	name string,
	rec *store.Record,
) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		revNum, err := s.claimNextRevision(tx, counterRecord+name)
		if err != nil {
			return err
		}
		rec.ID = revNum
		if revNum > 0 {
			rec.PreviousID = revNum - 1
		}

		payload, err := s.codec.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRecords).Put(keyObjectRevision(name, revNum), payload)
	})
}

func (s *Store) GetRecord(_ context.Context, name string, revID store.RevisionID) (*store.Record, error) {
	var rec store.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get(keyObjectRevision(name, revID))
		if v == nil {
			return store.ErrNotFound
		}
		return s.codec.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetLatestRevision returns the highest committed record revision for name.
func (s *Store) GetLatestRevision(
	_ context.Context,
	name string,
) (store.RevisionID, error) {
	counterKey := counterRecord + name

	// check cache first
	s.countersMu.RLock()
	if next, ok := s.counters[counterKey]; ok {
		s.countersMu.RUnlock()
		return store.RevisionID(next - 1), nil
	}
	s.countersMu.RUnlock()

	var next uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketLatest).Get([]byte(counterKey))
		if v == nil {
			return store.ErrNotFound
		}
		next = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.countersMu.Lock()
	s.counters[counterKey] = next
	s.countersMu.Unlock()
	return store.RevisionID(next - 1), nil
}

var errStopWalk = errors.New("stop walk")

// WalkRecords iterates all records in key order. Keys are "<name>|<rev>" with
// a big-endian revision, so revisions of a name are ascending, but "ab" sorts
// before "a" since '|' sorts after the letters.
func (s *Store) WalkRecords(fn func(name string, rec *store.Record) bool) error {
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRecords).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			name, _, err := splitObjectRevision(k)
			if err != nil {
				return fmt.Errorf("record key %q: %w", bytes.Clone(k), err)
			}
			var rec store.Record
			if err := s.codec.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("record %q: %w", name, err)
			}
			if !fn(name, &rec) {
				return errStopWalk
			}
		}
		return nil
	})
	if errors.Is(err, errStopWalk) {
		return nil
	}
	return err
}
