// Package v1 provides the tournament tracking REST API.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rostertrack/rostertrack/internal/api/common"
	"github.com/rostertrack/rostertrack/internal/export"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
	"github.com/rostertrack/rostertrack/internal/sync"
	"github.com/rostertrack/rostertrack/internal/sync/coordinator"
)

// maxRequestBodyBytes caps the size of JSON request bodies
const maxRequestBodyBytes = 64 << 10

// Routes handles HTTP requests for the v1 API
type Routes struct {
	manager     sync.Manager
	coordinator coordinator.Coordinator
	store       storage.Store
}

// NewRoutes creates a new Routes instance
func NewRoutes(manager sync.Manager, coord coordinator.Coordinator, store storage.Store) *Routes {
	return &Routes{
		manager:     manager,
		coordinator: coord,
		store:       store,
	}
}

// Router creates and configures the HTTP router for the v1 API
func Router(manager sync.Manager, coord coordinator.Coordinator, store storage.Store) http.Handler {
	routes := NewRoutes(manager, coord, store)

	r := chi.NewRouter()

	r.Post("/sync", routes.syncAll)

	r.Get("/tournaments", routes.listTournaments)
	r.Post("/tournaments", routes.trackTournament)
	r.Route("/tournaments/{id}", func(r chi.Router) {
		r.Get("/", routes.getTournament)
		r.Delete("/", routes.untrackTournament)
		r.Post("/sync", routes.syncTournament)
		r.Get("/participants", routes.listParticipants)
		r.Get("/participants.csv", routes.exportParticipants)
		r.Get("/participants/{participantId}", routes.getParticipant)
		r.Get("/changes", routes.listChanges)
	})

	return r
}

// listTournaments handles GET /api/v1/tournaments
func (routes *Routes) listTournaments(w http.ResponseWriter, r *http.Request) {
	tournaments, err := routes.store.ListTournaments(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}

	common.WriteJSONResponse(w, TournamentListResponse{
		Tournaments: tournaments,
		Count:       len(tournaments),
	}, http.StatusOK)
}

// trackTournament handles POST /api/v1/tournaments
func (routes *Routes) trackTournament(w http.ResponseWriter, r *http.Request) {
	var req TrackRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		common.WriteErrorResponse(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	req.TournamentID = strings.TrimSpace(req.TournamentID)
	if req.TournamentID == "" {
		common.WriteErrorResponse(w, "tournamentId is required", http.StatusBadRequest)
		return
	}
	if err := sync.ValidateTournamentID(req.TournamentID); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := routes.manager.Track(r.Context(), req.TournamentID, req.Name, req.Initialize)
	if err != nil {
		var syncErr *sync.Error
		if errors.As(err, &syncErr) {
			// Tracked, but the bootstrap run failed
			writeSyncError(w, syncErr)
			return
		}
		if errors.Is(err, sync.ErrInvalidTournamentID) {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeStoreError(w, err)
		return
	}

	tournament, err := routes.store.GetTournament(r.Context(), req.TournamentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	common.WriteJSONResponse(w, TrackResponse{Tournament: tournament, Result: result}, http.StatusCreated)
}

// getTournament handles GET /api/v1/tournaments/{id}
func (routes *Routes) getTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentID(w, r)
	if !ok {
		return
	}

	tournament, err := routes.store.GetTournament(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	common.WriteJSONResponse(w, tournament, http.StatusOK)
}

// untrackTournament handles DELETE /api/v1/tournaments/{id}
func (routes *Routes) untrackTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentID(w, r)
	if !ok {
		return
	}

	if err := routes.manager.Untrack(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// syncTournament handles POST /api/v1/tournaments/{id}/sync
func (routes *Routes) syncTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentID(w, r)
	if !ok {
		return
	}

	result, syncErr := routes.manager.SyncTournament(r.Context(), id)
	if syncErr != nil {
		writeSyncError(w, syncErr)
		return
	}

	common.WriteJSONResponse(w, result, http.StatusOK)
}

// syncAll handles POST /api/v1/sync
func (routes *Routes) syncAll(w http.ResponseWriter, r *http.Request) {
	batch, err := routes.coordinator.TriggerAll(r.Context())
	if errors.Is(err, coordinator.ErrBatchInProgress) {
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("Manual batch failed", "error", err)
		common.WriteErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	common.WriteJSONResponse(w, batch, http.StatusOK)
}

// listParticipants handles GET /api/v1/tournaments/{id}/participants.
// The optional status query parameter filters by active or left.
func (routes *Routes) listParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentID(w, r)
	if !ok {
		return
	}

	filter, err := parseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	participants, err := routes.store.ListParticipants(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if filter != "" {
		filtered := make([]*status.ParticipantStatus, 0, len(participants))
		for _, p := range participants {
			if p.Status == filter {
				filtered = append(filtered, p)
			}
		}
		participants = filtered
	}

	common.WriteJSONResponse(w, ParticipantListResponse{
		TournamentID: id,
		Participants: participants,
		Count:        len(participants),
	}, http.StatusOK)
}

// getParticipant handles GET /api/v1/tournaments/{id}/participants/{participantId}
func (routes *Routes) getParticipant(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentID(w, r)
	if !ok {
		return
	}
	participantID, err := common.GetAndValidateURLParam(r, "participantId")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	participant, err := routes.store.GetParticipant(r.Context(), id, participantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	common.WriteJSONResponse(w, participant, http.StatusOK)
}

// exportParticipants handles GET /api/v1/tournaments/{id}/participants.csv
func (routes *Routes) exportParticipants(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentID(w, r)
	if !ok {
		return
	}

	participants, err := routes.store.ListParticipants(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"_participants.csv"))
	w.WriteHeader(http.StatusOK)
	if err := export.WriteCSV(w, participants); err != nil {
		slog.Error("Failed to write CSV export", "tournament", id, "error", err)
	}
}

// listChanges handles GET /api/v1/tournaments/{id}/changes.
// Optional query parameters: type (joined or left) and after (an event ID).
func (routes *Routes) listChanges(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	var changeType status.ChangeType
	switch t := status.ChangeType(query.Get("type")); t {
	case "", status.ChangeJoined, status.ChangeLeft:
		changeType = t
	default:
		common.WriteErrorResponse(w, "Invalid type parameter: must be joined or left", http.StatusBadRequest)
		return
	}

	var after int64
	if afterStr := query.Get("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			common.WriteErrorResponse(w, "Invalid after parameter: must be a non-negative integer", http.StatusBadRequest)
			return
		}
		after = parsed
	}

	changes, err := routes.store.ListChanges(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	filtered := make([]*status.ChangeEvent, 0, len(changes))
	for _, c := range changes {
		if c.ID <= after {
			continue
		}
		if changeType != "" && c.ChangeType != changeType {
			continue
		}
		filtered = append(filtered, c)
	}

	common.WriteJSONResponse(w, ChangeListResponse{
		TournamentID: id,
		Changes:      filtered,
		Count:        len(filtered),
	}, http.StatusOK)
}

func tournamentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func parseStatusFilter(value string) (status.ParticipantState, error) {
	switch s := status.ParticipantState(value); s {
	case "", status.StateActive, status.StateLeft:
		return s, nil
	default:
		return "", errors.New("invalid status parameter: must be active or left")
	}
}

// writeStoreError maps store errors to HTTP status codes
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrTournamentNotFound):
		common.WriteErrorResponse(w, "Tournament not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrParticipantNotFound):
		common.WriteErrorResponse(w, "Participant not found", http.StatusNotFound)
	default:
		slog.Error("Store request failed", "error", err)
		common.WriteErrorResponse(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeSyncError maps a failed run to an HTTP status code
func writeSyncError(w http.ResponseWriter, syncErr *sync.Error) {
	switch syncErr.ConditionReason {
	case sync.ConditionReasonNotTracked:
		common.WriteErrorResponse(w, syncErr.Message, http.StatusNotFound)
	case sync.ConditionReasonFetchFailed:
		common.WriteErrorResponse(w, syncErr.Message, http.StatusBadGateway)
	default:
		common.WriteErrorResponse(w, syncErr.Message, http.StatusInternalServerError)
	}
}
