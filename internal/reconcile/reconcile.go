// Package reconcile computes the transitions between a stored participant
// snapshot and a freshly fetched roster.
//
// Reconcile is a pure function: it performs no I/O and never mutates its
// inputs. Storage backends apply the returned Plan inside a single
// transaction, see storage.Store.ReconcileAtomically.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/rostertrack/rostertrack/internal/status"
)

// RejoinPolicy decides what happens to a participant stored as left who
// shows up in the roster again
type RejoinPolicy string

const (
	// RejoinIgnore keeps the participant as historically left and emits nothing
	RejoinIgnore RejoinPolicy = "ignore"

	// RejoinReactivate marks the participant active again and emits a joined event
	RejoinReactivate RejoinPolicy = "reactivate"
)

// ParseRejoinPolicy validates a policy name. The empty string selects RejoinIgnore.
func ParseRejoinPolicy(s string) (RejoinPolicy, error) {
	switch RejoinPolicy(s) {
	case "", RejoinIgnore:
		return RejoinIgnore, nil
	case RejoinReactivate:
		return RejoinReactivate, nil
	default:
		return "", fmt.Errorf("unknown rejoin policy %q (expected %q or %q)", s, RejoinIgnore, RejoinReactivate)
	}
}

// Input is everything a reconciliation pass needs
type Input struct {
	TournamentID string
	Roster       status.Roster
	Stored       []*status.ParticipantStatus
	Now          time.Time
	RejoinPolicy RejoinPolicy
}

// Plan is the set of store mutations produced by a reconciliation pass
type Plan struct {
	TournamentID string

	// Upserts are the participant rows to insert or replace
	Upserts []*status.ParticipantStatus

	// Events are the change log entries to append, ordered by participant ID
	Events []*status.ChangeEvent

	// LastRun is the new value of the tournament's last successful run
	LastRun time.Time

	// Bootstrap is true when the tournament had no stored participants
	Bootstrap bool

	// ActiveCount is the number of active participants once the plan is applied
	ActiveCount int

	Joined   int
	Left     int
	Rejoined int
	Renamed  int
}

// HasChanges reports whether applying the plan changes any participant row
func (p *Plan) HasChanges() bool {
	return len(p.Upserts) > 0
}

// Reconcile compares the fetched roster with the stored statuses.
//
// The roster passed here must come from a successful fetch: an empty
// roster is taken at face value and marks every active participant as left.
func Reconcile(in Input) *Plan {
	plan := &Plan{
		TournamentID: in.TournamentID,
		LastRun:      in.Now,
	}

	roster := dedupe(in.Roster)

	if len(in.Stored) == 0 {
		plan.Bootstrap = true
		for _, entry := range roster {
			plan.Upserts = append(plan.Upserts, newActive(in.TournamentID, entry, in.Now))
		}
		plan.ActiveCount = len(plan.Upserts)
		sortPlan(plan)
		return plan
	}

	stored := make(map[string]*status.ParticipantStatus, len(in.Stored))
	for _, ps := range in.Stored {
		stored[ps.ParticipantID] = ps
	}
	fetched := roster.IDs()

	for _, entry := range roster {
		prev, seen := stored[entry.ParticipantID]
		switch {
		case !seen:
			plan.Upserts = append(plan.Upserts, newActive(in.TournamentID, entry, in.Now))
			plan.Events = append(plan.Events, newEvent(in.TournamentID, entry.ParticipantID, status.ChangeJoined, in.Now))
			plan.Joined++
		case prev.IsActive():
			if entry.DisplayName != prev.DisplayName {
				renamed := prev.Clone()
				renamed.DisplayName = entry.DisplayName
				plan.Upserts = append(plan.Upserts, renamed)
				plan.Renamed++
			}
		case in.RejoinPolicy == RejoinReactivate:
			rejoined := newActive(in.TournamentID, entry, in.Now)
			plan.Upserts = append(plan.Upserts, rejoined)
			plan.Events = append(plan.Events, newEvent(in.TournamentID, entry.ParticipantID, status.ChangeJoined, in.Now))
			plan.Rejoined++
		}
	}

	for _, prev := range in.Stored {
		if !prev.IsActive() {
			continue
		}
		if _, ok := fetched[prev.ParticipantID]; ok {
			continue
		}
		left := prev.Clone()
		left.Status = status.StateLeft
		leftAt := in.Now
		left.LeftAt = &leftAt
		plan.Upserts = append(plan.Upserts, left)
		plan.Events = append(plan.Events, newEvent(in.TournamentID, prev.ParticipantID, status.ChangeLeft, in.Now))
		plan.Left++
	}

	active := 0
	for _, ps := range in.Stored {
		if ps.IsActive() {
			active++
		}
	}
	plan.ActiveCount = active + plan.Joined + plan.Rejoined - plan.Left

	sortPlan(plan)
	return plan
}

// dedupe drops repeated participant IDs, keeping the first occurrence
func dedupe(roster status.Roster) status.Roster {
	seen := make(map[string]struct{}, len(roster))
	out := make(status.Roster, 0, len(roster))
	for _, entry := range roster {
		if _, dup := seen[entry.ParticipantID]; dup {
			continue
		}
		seen[entry.ParticipantID] = struct{}{}
		out = append(out, entry)
	}
	return out
}

func newActive(tournamentID string, entry status.RosterEntry, now time.Time) *status.ParticipantStatus {
	return &status.ParticipantStatus{
		TournamentID:  tournamentID,
		ParticipantID: entry.ParticipantID,
		DisplayName:   entry.DisplayName,
		Status:        status.StateActive,
		JoinedAt:      now,
	}
}

func newEvent(tournamentID, participantID string, changeType status.ChangeType, now time.Time) *status.ChangeEvent {
	return &status.ChangeEvent{
		TournamentID:  tournamentID,
		ParticipantID: participantID,
		ChangeType:    changeType,
		OccurredAt:    now,
	}
}

// sortPlan orders upserts and events by participant ID so that the change
// log is reproducible for a given input
func sortPlan(plan *Plan) {
	sort.SliceStable(plan.Upserts, func(i, j int) bool {
		return plan.Upserts[i].ParticipantID < plan.Upserts[j].ParticipantID
	})
	sort.SliceStable(plan.Events, func(i, j int) bool {
		return plan.Events[i].ParticipantID < plan.Events[j].ParticipantID
	})
}
