package bbolt

import (
	"encoding/binary"

	"go.etcd.io/bbolt"

	"github.com/loog-project/nmldiff/internal/store"
)

const (
	counterSnapshot = "s|"
	counterRecord   = "r|"
)

func keyObjectRevision(key string, id store.RevisionID) []byte {
	buf := make([]byte, len(key)+1+8)
	copy(buf, key)
	buf[len(key)] = '|'
	binary.BigEndian.PutUint64(buf[len(key)+1:], uint64(id))
	return buf
}

// splitObjectRevision is the inverse of keyObjectRevision.
func splitObjectRevision(raw []byte) (string, store.RevisionID, error) {
	if len(raw) < 9 || raw[len(raw)-9] != '|' {
		return "", 0, errMalformedKey
	}
	name := string(raw[:len(raw)-9])
	return name, store.RevisionID(binary.BigEndian.Uint64(raw[len(raw)-8:])), nil
}

// claimNextRevision atomically increments the counter stored under
// counterKey in bucketLatest *and* updates the in-memory cache. It returns
// the newly assigned revision number.
func (s *Store) claimNextRevision(tx *bbolt.Tx, counterKey string) (store.RevisionID, error) {
	latest := tx.Bucket(bucketLatest)

	var next uint64
	if raw := latest.Get([]byte(counterKey)); raw != nil {
		next = binary.BigEndian.Uint64(raw)
	}
	revisionNumber := store.RevisionID(next)
	next++

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := latest.Put([]byte(counterKey), buf); err != nil {
		return 0, err
	}

	// the cache is only touched once the transaction commits
	tx.OnCommit(func() {
		s.countersMu.Lock()
		s.counters[counterKey] = next
		s.countersMu.Unlock()
	})

	return revisionNumber, nil
}
