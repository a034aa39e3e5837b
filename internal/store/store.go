package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRevision = errors.New("invalid revision")
)

// ArtifactStore keeps the drift history: snapshots of compared trees (per
// label) and diff records (per name). Revisions are numbered per key,
// starting at 0.
type ArtifactStore interface {
	SetSnapshot(ctx context.Context, label string, snap *Snapshot) error
	GetSnapshot(ctx context.Context, label string, revID RevisionID) (*Snapshot, error)

	SetRecord(ctx context.Context, name string, rec *Record) error
	GetRecord(ctx context.Context, name string, revID RevisionID) (*Record, error)
	GetLatestRevision(ctx context.Context, name string) (RevisionID, error)

	// WalkRecords calls fn for every record until fn returns false. Records
	// of one name are visited together in revision order; names come in
	// storage order, which is not necessarily sorted.
	WalkRecords(fn func(name string, rec *Record) bool) error
	Close() error
}
