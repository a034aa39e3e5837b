package bbolt

import (
	"errors"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/loog-project/nmldiff/internal/store"
)

var (
	bucketSnapshots = []byte("snapshots") // <label>|rev -> Snapshot
	bucketRecords   = []byte("records")   // <name>|rev  -> Record
	bucketLatest    = []byte("latest")    // s|<label> or r|<name> -> uint64(next revision)
)

var errMalformedKey = errors.New("malformed key")

// Store keeps snapshots and diff records in a single bbolt file. The next
// revision of every key is cached after its first lookup.
type Store struct {
	db    *bbolt.DB
	codec store.Codec

	countersMu sync.RWMutex
	counters   map[string]uint64
}

var _ store.ArtifactStore = (*Store)(nil)

// New opens (or creates) a BoltDB database file.
// Pass nil for [codec] to use the default MessagePack implementation.
// With [durable] unset, commits skip the fsync.
func New(path string, codec store.Codec, durable bool) (*Store, error) {
	if codec == nil {
		codec = store.DefaultCodec
	}
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{
		Timeout:      0,
		NoSync:       !durable,
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSnapshots, bucketRecords, bucketLatest} {
			if _, e := tx.CreateBucketIfNotExists(b); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create default buckets: %w", err)
	}
	return &Store{
		db:       db,
		codec:    codec,
		counters: make(map[string]uint64),
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
