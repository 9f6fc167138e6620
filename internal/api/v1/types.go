package v1

import (
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/sync"
)

// TrackRequest is the body of POST /api/v1/tournaments
type TrackRequest struct {
	TournamentID string `json:"tournamentId"`
	Name         string `json:"name,omitempty"`

	// Initialize runs the bootstrap sync before responding
	Initialize bool `json:"initialize,omitempty"`
}

// TrackResponse is returned after a tournament starts being tracked
type TrackResponse struct {
	Tournament *status.TrackedTournament `json:"tournament"`

	// Result is set when the bootstrap sync ran
	Result *sync.Result `json:"result,omitempty"`
}

// TournamentListResponse lists tracked tournaments
type TournamentListResponse struct {
	Tournaments []*status.TrackedTournament `json:"tournaments"`
	Count       int                         `json:"count"`
}

// ParticipantListResponse lists the participants of a tournament
type ParticipantListResponse struct {
	TournamentID string                      `json:"tournamentId"`
	Participants []*status.ParticipantStatus `json:"participants"`
	Count        int                         `json:"count"`
}

// ChangeListResponse lists the change log of a tournament
type ChangeListResponse struct {
	TournamentID string                `json:"tournamentId"`
	Changes      []*status.ChangeEvent `json:"changes"`
	Count        int                   `json:"count"`
}
