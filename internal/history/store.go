// Package history persists a record of every build, and the stage events
// within it, in a local SQLite database.
package history

import (
	"context"
	"time"
)

// Build summarizes one finished build.
type Build struct {
	ID           string
	Start        time.Time
	End          time.Time
	Outcome      string
	Units        int
	Nodes        int
	Written      int
	Unchanged    int
	Placeholders int
	Issues       int
	ManifestHash string
}

// Duration is End - Start.
func (b Build) Duration() time.Duration { return b.End.Sub(b.Start) }

// StageEvent records the completion of one stage.
type StageEvent struct {
	BuildID   string
	Stage     string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

// Store persists builds and their stage events.
type Store interface {
	// RecordBuild inserts or replaces a build summary.
	RecordBuild(ctx context.Context, b Build) error
	// AppendEvent adds a stage event for a build.
	AppendEvent(ctx context.Context, e StageEvent) error
	// Recent lists the newest builds first, at most limit (all when limit <= 0).
	Recent(ctx context.Context, limit int) ([]Build, error)
	// Events lists a build's stage events in insertion order.
	Events(ctx context.Context, buildID string) ([]StageEvent, error)
	Close() error
}
