package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/rostertrack/rostertrack/internal/httpclient"
)

const (
	// DefaultEndpoint is the base URL of the CueScore API
	DefaultEndpoint = "https://api.cuescore.com"

	// DefaultMaxRetries is the number of attempts made for a single fetch
	DefaultMaxRetries = 3

	participantsListParam = "Participants list"
)

// APIFetcher fetches rosters from a CueScore compatible HTTP endpoint
type APIFetcher struct {
	httpClient httpclient.Client
	endpoint   string
	maxTries   uint
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// APIFetcherOption configures an APIFetcher
type APIFetcherOption func(*APIFetcher)

// WithMaxRetries sets the total number of attempts per fetch
func WithMaxRetries(n int) APIFetcherOption {
	return func(f *APIFetcher) {
		if n > 0 {
			f.maxTries = uint(n)
		}
	}
}

// WithBackOff overrides the retry back-off policy
func WithBackOff(newBackOff func() backoff.BackOff) APIFetcherOption {
	return func(f *APIFetcher) {
		f.newBackOff = newBackOff
	}
}

// WithClock overrides the clock used to stamp results
func WithClock(now func() time.Time) APIFetcherOption {
	return func(f *APIFetcher) {
		f.now = now
	}
}

// NewAPIFetcher creates a fetcher for the given endpoint.
// An empty endpoint selects DefaultEndpoint.
func NewAPIFetcher(client httpclient.Client, endpoint string, opts ...APIFetcherOption) *APIFetcher {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	f := &APIFetcher{
		httpClient: client,
		endpoint:   strings.TrimRight(endpoint, "/"),
		maxTries:   DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RosterURL builds the roster request URL for a tournament
func (f *APIFetcher) RosterURL(tournamentID string) string {
	q := url.Values{}
	q.Set("id", tournamentID)
	q.Set("participants", participantsListParam)
	return f.endpoint + "/tournament/?" + q.Encode()
}

// Fetch retrieves and parses the roster of a tournament.
// Transport errors and HTTP 5xx/429 responses are retried; other HTTP
// errors and unparseable payloads fail immediately.
func (f *APIFetcher) Fetch(ctx context.Context, tournamentID string) (*FetchResult, error) {
	if tournamentID == "" {
		return nil, errors.New("tournament ID is required")
	}

	rosterURL := f.RosterURL(tournamentID)
	attempt := 0

	operation := func() (*ParseResult, error) {
		attempt++
		data, err := f.httpClient.Get(ctx, rosterURL)
		if err != nil {
			if httpclient.IsPermanent(err) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			slog.Debug("Roster fetch attempt failed",
				"tournament", tournamentID,
				"attempt", attempt,
				"error", err)
			return nil, err
		}
		parsed, err := ParseRoster(data)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return parsed, nil
	}

	parsed, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(f.newBackOff()),
		backoff.WithMaxTries(f.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch roster for tournament %s: %w", tournamentID, err)
	}

	if parsed.Skipped > 0 {
		slog.Debug("Skipped invalid roster entries",
			"tournament", tournamentID,
			"skipped", parsed.Skipped,
			"valid", len(parsed.Roster))
	}

	return &FetchResult{
		TournamentID: tournamentID,
		Roster:       parsed.Roster,
		Shape:        parsed.Shape,
		Skipped:      parsed.Skipped,
		FetchedAt:    f.now(),
	}, nil
}
