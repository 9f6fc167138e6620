package sources

import (
	"context"
	"errors"
	"time"

	"github.com/rostertrack/rostertrack/internal/status"
)

var (
	// ErrUnrecognizedShape is returned when the payload matches none of the known roster shapes
	ErrUnrecognizedShape = errors.New("unrecognized roster payload")

	// ErrNoValidEntries is returned when the payload lists participants but none of them is usable
	ErrNoValidEntries = errors.New("roster payload has entries but none are valid")
)

// Shape identifies which payload layout a roster was parsed from
type Shape string

const (
	// ShapeArray is a top-level JSON array of entries
	ShapeArray Shape = "array"

	// ShapeObject is a JSON object holding the entries under a known key
	ShapeObject Shape = "object"
)

//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=types.go Fetcher

// Fetcher retrieves the current roster of a tournament
type Fetcher interface {
	// Fetch returns the roster of the tournament. On failure the result is
	// nil and the error is non-nil.
	Fetch(ctx context.Context, tournamentID string) (*FetchResult, error)
}

// FetchResult is a roster obtained from a successful fetch
type FetchResult struct {
	TournamentID string
	Roster       status.Roster
	Shape        Shape

	// Skipped is the number of payload entries dropped during validation
	Skipped int

	FetchedAt time.Time
}

// Count returns the number of participants in the roster
func (r *FetchResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Roster)
}
