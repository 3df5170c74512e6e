package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openwot/webthing-core/internal/thing"
)

// handleThingDescription returns the thing description document.
func (s *Server) handleThingDescription(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.thing.AsThingDescription())
}

// handleListProperties returns the current value of every property.
func (s *Server) handleListProperties(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.thing.Properties())
}

// handleGetProperty returns a single property value keyed by name.
func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	value, ok := s.thing.GetProperty(name)
	if !ok {
		writeNotFound(w, "property not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{name: value})
}

// handleSetProperty updates a property value. The request body is keyed
// by property name, matching the WoT protocol:
//
//	PUT /properties/brightness
//	{"brightness": 40}
func (s *Server) handleSetProperty(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	value, ok := body[name]
	if !ok {
		writeBadRequest(w, "body must contain key "+strconv.Quote(name))
		return
	}

	if err := s.thing.SetProperty(name, value); err != nil {
		switch {
		case errors.Is(err, thing.ErrPropertyNotFound):
			writeNotFound(w, "property not found: "+name)
		case errors.Is(err, thing.ErrReadOnlyProperty),
			errors.Is(err, thing.ErrInvalidPropertyValue):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "setting property failed")
		}
		return
	}

	value, _ = s.thing.GetProperty(name)
	writeJSON(w, http.StatusOK, map[string]any{name: value})
}

// handleListActions returns instance descriptions for every action type.
func (s *Server) handleListActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.thing.ActionDescriptions(""))
}

// handleListActionsByName returns instance descriptions for one type.
func (s *Server) handleListActionsByName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.thing.ActionDescriptions(chi.URLParam(r, "name")))
}

// handleRequestAction creates and starts one action instance. The request
// body is keyed by action name, matching the WoT protocol:
//
//	POST /actions
//	{"fade": {"input": {"brightness": 50, "duration": 2000}}}
//
// When posted to /actions/{name} the body key must match the route name.
// Exactly one action may be requested per call. On success the instance
// description is returned with 201 and the action runs asynchronously.
func (s *Server) handleRequestAction(w http.ResponseWriter, r *http.Request) {
	routeName := chi.URLParam(r, "name")

	var body map[string]struct {
		Input any `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(body) != 1 {
		writeBadRequest(w, "body must contain exactly one action")
		return
	}

	for name, req := range body {
		if routeName != "" && name != routeName {
			writeBadRequest(w, "action name does not match route")
			return
		}

		action, err := s.thing.PerformAction(name, req.Input)
		if err != nil {
			switch {
			case errors.Is(err, thing.ErrUnknownAction):
				writeNotFound(w, "unknown action: "+name)
			case errors.Is(err, thing.ErrInvalidActionInput):
				writeBadRequest(w, err.Error())
			default:
				writeInternalError(w, "requesting action failed")
			}
			return
		}

		if runner, ok := action.(interface{ Start() }); ok {
			go runner.Start()
		}
		writeJSON(w, http.StatusCreated, action.Description())
	}
}

// handleGetAction returns the description of one action instance.
func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	action, ok := s.thing.GetAction(name, id)
	if !ok {
		writeNotFound(w, "action instance not found")
		return
	}
	writeJSON(w, http.StatusOK, action.Description())
}

// handleCancelAction cancels and removes one action instance.
func (s *Server) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	if !s.thing.RemoveAction(name, id) {
		writeNotFound(w, "action instance not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListEvents returns descriptions of every logged event.
func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.thing.EventDescriptions(""))
}

// handleListEventsByName returns logged events of one type.
func (s *Server) handleListEventsByName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.thing.EventDescriptions(chi.URLParam(r, "name")))
}

// handleEventHistory returns archived events of one type from the SQLite
// event archive, newest first. Returns 503 if no archive is configured.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal,
			"event archive not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.archive.History(r.Context(), s.thing.ID(), chi.URLParam(r, "name"), limit)
	if err != nil {
		s.logger.Error("event history query failed", "error", err)
		writeInternalError(w, "event history query failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
