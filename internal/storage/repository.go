// Package storage persists the artifact manifest: a log of every dataset
// served from the cache, built from survey sources, or written back.
//
// The manifest lives in SQLite for a single workstation or in PostgreSQL
// when several machines share one cache.
package storage

import (
	"context"
	"time"
)

// ArtifactKind records how an artifact was served.
type ArtifactKind string

const (
	ArtifactHit     ArtifactKind = "hit"
	ArtifactBuilt   ArtifactKind = "built"
	ArtifactWritten ArtifactKind = "written"
)

// Artifact is one manifest record.
type Artifact struct {
	Dataset     string       `json:"dataset"`
	LogicalPath string       `json:"logical_path"`
	Store       string       `json:"store"`
	Kind        ArtifactKind `json:"kind"`
	Rows        int          `json:"rows"`
	Columns     []string     `json:"columns"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// ArtifactRepository defines manifest persistence.
// Implementations must be thread-safe and respect context cancellation.
type ArtifactRepository interface {
	// Record appends one record.
	Record(ctx context.Context, a Artifact) error

	// Latest returns the most recent record for a logical path.
	// Returns ErrArtifactNotFound when there is none.
	Latest(ctx context.Context, logicalPath string) (*Artifact, error)

	// List returns all records, newest first. Empty slice, not nil, when empty.
	List(ctx context.Context) ([]*Artifact, error)

	// CheckConnectivity verifies the backing database is reachable.
	CheckConnectivity(ctx context.Context) error
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime renders t in UTC with a fixed width so text ordering is time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
