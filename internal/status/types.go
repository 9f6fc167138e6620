// Package status holds the records the tracker persists: tracked
// tournaments, per-participant status and the append-only change log.
package status

import "time"

// ParticipantState is the registration state of a participant
type ParticipantState string

const (
	// StateActive means the participant appeared in the latest successful fetch
	StateActive ParticipantState = "active"

	// StateLeft means the participant was seen before and has since disappeared
	StateLeft ParticipantState = "left"
)

// ChangeType is the kind of transition recorded in the change log
type ChangeType string

const (
	// ChangeJoined is recorded when a participant first appears after the bootstrap run
	ChangeJoined ChangeType = "joined"

	// ChangeLeft is recorded when an active participant disappears
	ChangeLeft ChangeType = "left"
)

// TrackedTournament is a tournament subject to periodic reconciliation
type TrackedTournament struct {
	// TournamentID is the opaque identifier used by the upstream API
	TournamentID string `json:"tournamentId" yaml:"tournamentId"`

	// DisplayName is an optional human readable name
	DisplayName string `json:"name,omitempty" yaml:"name,omitempty"`

	// CreatedAt is when tracking started
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`

	// LastRun is the time of the last successful reconciliation.
	// It is left untouched by failed attempts so a failing tournament
	// shows a stale value.
	LastRun *time.Time `json:"lastRun,omitempty" yaml:"lastRun,omitempty"`

	// LastAttempt is the time of the last reconciliation attempt, successful or not
	LastAttempt *time.Time `json:"lastAttempt,omitempty" yaml:"lastAttempt,omitempty"`

	// LastError is the message of the last failed attempt, cleared on success
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty"`

	// FailureCount is the number of consecutive failed attempts
	FailureCount int `json:"failureCount,omitempty" yaml:"failureCount,omitempty"`

	// ParticipantCount is the number of active participants after the last successful run
	ParticipantCount int `json:"participantCount" yaml:"participantCount"`
}

// Name returns the display name, falling back to a name derived from the ID
func (t *TrackedTournament) Name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	return "Tournament " + t.TournamentID
}

// ParticipantStatus is the stored state of one participant in one tournament
type ParticipantStatus struct {
	TournamentID  string           `json:"tournamentId"`
	ParticipantID string           `json:"participantId"`
	DisplayName   string           `json:"name"`
	Status        ParticipantState `json:"status"`
	JoinedAt      time.Time        `json:"joinedAt"`
	LeftAt        *time.Time       `json:"leftAt,omitempty"`
}

// IsActive reports whether the participant is currently registered
func (p *ParticipantStatus) IsActive() bool {
	return p.Status == StateActive
}

// Clone returns a deep copy of the status
func (p *ParticipantStatus) Clone() *ParticipantStatus {
	c := *p
	if p.LeftAt != nil {
		leftAt := *p.LeftAt
		c.LeftAt = &leftAt
	}
	return &c
}

// ChangeEvent is an immutable record of a detected join or leave
type ChangeEvent struct {
	// ID is a surrogate identity assigned by the store, increasing in insertion order
	ID            int64      `json:"id"`
	TournamentID  string     `json:"tournamentId"`
	ParticipantID string     `json:"participantId"`
	ChangeType    ChangeType `json:"changeType"`
	OccurredAt    time.Time  `json:"occurredAt"`
}

// Clone returns a deep copy of the tournament record
func (t *TrackedTournament) Clone() *TrackedTournament {
	c := *t
	if t.LastRun != nil {
		lastRun := *t.LastRun
		c.LastRun = &lastRun
	}
	if t.LastAttempt != nil {
		lastAttempt := *t.LastAttempt
		c.LastAttempt = &lastAttempt
	}
	return &c
}

// RosterEntry is one participant as reported by the upstream registration API
type RosterEntry struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"name"`
}

// Roster is an ordered list of roster entries
type Roster []RosterEntry

// IDs returns the set of participant IDs in the roster
func (r Roster) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(r))
	for _, e := range r {
		ids[e.ParticipantID] = struct{}{}
	}
	return ids
}
