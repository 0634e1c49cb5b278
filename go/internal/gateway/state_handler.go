package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mcdev12/raidtimer/go/internal/events"
	"github.com/mcdev12/raidtimer/go/internal/timer"
)

const (
	appName = "raidtimer"
	// ProtocolVersion is checked by clients before they go online.
	ProtocolVersion = 8
)

// StateHandler handles HTTP requests for group state
type StateHandler struct {
	registry        *timer.Registry
	longPollTimeout time.Duration
	clock           clockwork.Clock
}

// NewStateHandler creates a new state handler
func NewStateHandler(registry *timer.Registry, longPollTimeout time.Duration, clock clockwork.Clock) *StateHandler {
	return &StateHandler{
		registry:        registry,
		longPollTimeout: longPollTimeout,
		clock:           clock,
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.HandleInfo)

	mux.HandleFunc("GET /groups/{id}", h.HandleGetGroupState)
	mux.HandleFunc("POST /groups/{id}", h.HandleGetGroupState)
	mux.HandleFunc("POST /groups/{id}/{$}", h.HandleGetGroupState)

	mux.HandleFunc("POST /groups/{id}/start", h.HandleStart)
	mux.HandleFunc("POST /groups/{id}/stop", h.HandleStop)
	mux.HandleFunc("POST /groups/{id}/prepare", h.HandlePrepare)
	mux.HandleFunc("POST /groups/{id}/reset", h.HandleReset)
	mux.HandleFunc("POST /groups/{id}/segment", h.HandleSegment)
	mux.HandleFunc("POST /groups/{id}/clear_segment", h.HandleClearSegments)
}

// HandleInfo handles GET /
func (h *StateHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, events.ServerInfo{App: appName, Version: ProtocolVersion})
}

// HandleGetGroupState handles GET and POST /groups/{id}. When the caller says
// which version it has, the request is held until the group changes.
func (h *StateHandler) HandleGetGroupState(w http.ResponseWriter, r *http.Request) {
	query, err := parseStatusRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	group := h.group(r)
	snap, ok := h.awaitChange(r, group, query)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, events.NewGroupState(snap, h.clock.Now()))
}

// awaitChange returns false when the client went away while waiting; in that
// case nothing must be written.
func (h *StateHandler) awaitChange(r *http.Request, group *timer.Group, query statusQuery) (timer.Snapshot, bool) {
	if !query.waits() {
		return group.Snapshot(), true
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.longPollTimeout)
	defer cancel()

	var (
		snap timer.Snapshot
		err  error
	)
	if query.updateID != nil {
		snap, err = group.WaitForChange(ctx, *query.updateID)
	} else {
		snap, err = group.WaitForChangeSince(ctx, *query.updateTime)
	}

	switch {
	case err == nil:
		return snap, true
	case r.Context().Err() != nil:
		zerolog.Ctx(r.Context()).Debug().
			Str("group_id", group.ID()).
			Msg("client disconnected during long-poll")
		return timer.Snapshot{}, false
	default:
		// Budget exhausted: answer with the unchanged state so the client polls again.
		return group.Snapshot(), true
	}
}

// HandleStart handles POST /groups/{id}/start
func (h *StateHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	t, err := parseTimeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeMutation(w, r, h.group(r).Start(t))
}

// HandleStop handles POST /groups/{id}/stop
func (h *StateHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	t, err := parseTimeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeMutation(w, r, h.group(r).Stop(t))
}

// HandlePrepare handles POST /groups/{id}/prepare
func (h *StateHandler) HandlePrepare(w http.ResponseWriter, r *http.Request) {
	h.writeMutation(w, r, h.group(r).Prepare())
}

// HandleReset handles POST /groups/{id}/reset
func (h *StateHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.writeMutation(w, r, h.group(r).Reset())
}

// HandleSegment handles POST /groups/{id}/segment
func (h *StateHandler) HandleSegment(w http.ResponseWriter, r *http.Request) {
	index, t, name, err := parseSegmentRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := h.group(r).RecordSegment(index, t, name)
	if err != nil {
		if errors.Is(err, timer.ErrSegmentIndexOutOfRange) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("group_id", r.PathValue("id")).Msg("failed to record segment")
		http.Error(w, "Failed to record segment", http.StatusInternalServerError)
		return
	}
	h.writeMutation(w, r, snap)
}

// HandleClearSegments handles POST /groups/{id}/clear_segment
func (h *StateHandler) HandleClearSegments(w http.ResponseWriter, r *http.Request) {
	h.writeMutation(w, r, h.group(r).ClearSegments())
}

func (h *StateHandler) group(r *http.Request) *timer.Group {
	return h.registry.GetOrCreate(r.PathValue("id"))
}

func (h *StateHandler) writeMutation(w http.ResponseWriter, r *http.Request, snap timer.Snapshot) {
	writeJSON(w, r, http.StatusOK, events.MutationResult{Status: "success", UpdateID: snap.Version})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}
