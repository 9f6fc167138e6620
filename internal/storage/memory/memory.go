// Package memory provides an in-process Store. State is lost on exit.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
)

type tournamentState struct {
	tournament   *status.TrackedTournament
	participants map[string]*status.ParticipantStatus
	changes      []*status.ChangeEvent
}

// Store keeps all state in maps guarded by a single RWMutex
type Store struct {
	mu          sync.RWMutex
	tournaments map[string]*tournamentState
	nextEventID int64
	now         func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		tournaments: make(map[string]*tournamentState),
		now:         time.Now,
	}
}

// UpsertTournament implements storage.Store. An empty name keeps the stored one.
func (s *Store) UpsertTournament(_ context.Context, t *status.TrackedTournament) error {
	if t == nil || t.TournamentID == "" {
		return fmt.Errorf("tournament id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tournaments[t.TournamentID]; ok {
		if t.DisplayName != "" {
			existing.tournament.DisplayName = t.DisplayName
		}
		return nil
	}

	created := &status.TrackedTournament{
		TournamentID: t.TournamentID,
		DisplayName:  t.DisplayName,
		CreatedAt:    t.CreatedAt,
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now().UTC()
	}
	s.tournaments[t.TournamentID] = &tournamentState{
		tournament:   created,
		participants: make(map[string]*status.ParticipantStatus),
	}
	return nil
}

// GetTournament implements storage.Store
func (s *Store) GetTournament(_ context.Context, tournamentID string) (*status.TrackedTournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, storage.ErrTournamentNotFound
	}
	return state.tournament.Clone(), nil
}

// ListTournaments implements storage.Store
func (s *Store) ListTournaments(_ context.Context) ([]*status.TrackedTournament, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*status.TrackedTournament, 0, len(s.tournaments))
	for _, state := range s.tournaments {
		result = append(result, state.tournament.Clone())
	}
	slices.SortFunc(result, func(a, b *status.TrackedTournament) int {
		return cmp.Compare(a.TournamentID, b.TournamentID)
	})
	return result, nil
}

// DeleteTournament implements storage.Store
func (s *Store) DeleteTournament(_ context.Context, tournamentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tournaments[tournamentID]; !ok {
		return storage.ErrTournamentNotFound
	}
	delete(s.tournaments, tournamentID)
	return nil
}

// ListParticipants implements storage.Store
func (s *Store) ListParticipants(_ context.Context, tournamentID string) ([]*status.ParticipantStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, storage.ErrTournamentNotFound
	}
	return sortedParticipants(state), nil
}

// GetParticipant implements storage.Store
func (s *Store) GetParticipant(_ context.Context, tournamentID, participantID string) (*status.ParticipantStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, storage.ErrTournamentNotFound
	}
	p, ok := state.participants[participantID]
	if !ok {
		return nil, storage.ErrParticipantNotFound
	}
	return p.Clone(), nil
}

// ListChanges implements storage.Store
func (s *Store) ListChanges(_ context.Context, tournamentID string) ([]*status.ChangeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, storage.ErrTournamentNotFound
	}
	result := make([]*status.ChangeEvent, len(state.changes))
	for i, ev := range state.changes {
		c := *ev
		result[i] = &c
	}
	return result, nil
}

// ReconcileAtomically implements storage.Store. The write lock is held for
// the whole call, so fn sees a stable snapshot and nothing is written if it fails.
func (s *Store) ReconcileAtomically(
	_ context.Context,
	tournamentID string,
	fn storage.ReconcileFunc,
) (*reconcile.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tournaments[tournamentID]
	if !ok {
		return nil, storage.ErrTournamentNotFound
	}

	plan, err := fn(state.tournament.Clone(), sortedParticipants(state))
	if err != nil {
		return nil, err
	}

	for _, p := range plan.Upserts {
		state.participants[p.ParticipantID] = p.Clone()
	}
	for _, ev := range plan.Events {
		s.nextEventID++
		ev.ID = s.nextEventID
		c := *ev
		state.changes = append(state.changes, &c)
	}
	storage.ApplyToTournament(state.tournament, plan)

	return plan, nil
}

// RecordFailure implements storage.Store
func (s *Store) RecordFailure(_ context.Context, tournamentID string, at time.Time, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tournaments[tournamentID]
	if !ok {
		return storage.ErrTournamentNotFound
	}
	storage.ApplyFailure(state.tournament, at, message)
	return nil
}

// Ping implements storage.Store
func (*Store) Ping(context.Context) error {
	return nil
}

// Close implements storage.Store
func (*Store) Close() error {
	return nil
}

func sortedParticipants(state *tournamentState) []*status.ParticipantStatus {
	result := make([]*status.ParticipantStatus, 0, len(state.participants))
	for _, p := range state.participants {
		result = append(result, p.Clone())
	}
	slices.SortFunc(result, func(a, b *status.ParticipantStatus) int {
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
	return result
}
