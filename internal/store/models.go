package store

import (
	"fmt"
	"time"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

type RevisionID uint64

func (id RevisionID) String() string {
	return fmt.Sprintf("%08x", uint64(id))
}

type Snapshot struct {
	/// Revision Metadata
	// ID of the revision, assigned by the store.
	ID RevisionID `msgpack:"i" json:"ID,omitempty"`
	// Time the tree was loaded.
	Time time.Time `msgpack:"t" json:"time,omitempty"`

	/// Snapshot Metadata
	// Label the tree was diffed under.
	Label string `msgpack:"l" json:"label"`
	// Source is the file the tree was loaded from.
	Source string `msgpack:"src,omitempty" json:"source,omitempty"`
	// Tree is the loaded document.
	Tree diffmap.Tree `msgpack:"o" json:"tree,omitempty"`
}

type Record struct {
	/// Revision Metadata
	// ID of the revision, assigned by the store.
	ID RevisionID `msgpack:"i" json:"ID,omitempty"`
	// PreviousID is the record recorded before this one under the same name.
	// It is unset for the first record.
	PreviousID RevisionID `msgpack:"<,omitempty" json:"previousID,omitempty"`
	// Time the diff was computed.
	Time time.Time `msgpack:"t" json:"time,omitempty"`

	/// Record Metadata
	// SnapshotA and SnapshotB point at the snapshots of both compared trees,
	// stored under the artifact's labels.
	SnapshotA RevisionID `msgpack:"sa,omitempty" json:"snapshotA,omitempty"`
	SnapshotB RevisionID `msgpack:"sb,omitempty" json:"snapshotB,omitempty"`
	// Artifact is the computed diff.
	Artifact *diffmap.Artifact `msgpack:"d" json:"artifact,omitempty"`
}
