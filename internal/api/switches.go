package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AlienQ7/iotpro/internal/device"
)

// handleListSwitches returns all of the caller's switches.
//
// GET /api/v1/switches
func (s *Server) handleListSwitches(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing session")
		return
	}

	switches, err := s.switches.List(r.Context(), claims.UserID)
	if err != nil {
		s.logger.Error("listing switches failed", "error", err)
		writeInternalError(w, "listing switches failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"switches": switches})
}

// setSwitchRequest is the request body for POST /switches.
type setSwitchRequest struct {
	Name string `json:"name"`
	On   bool   `json:"is_on"`
}

// handleSetSwitch creates or toggles a switch and broadcasts the change.
//
// POST /api/v1/switches
func (s *Server) handleSetSwitch(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing session")
		return
	}

	var req setSwitchRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	sw, err := s.switches.Set(r.Context(), claims.UserID, req.Name, req.On)
	if err != nil {
		if errors.Is(err, device.ErrInvalidName) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("setting switch failed", "error", err)
		writeInternalError(w, "setting switch failed")
		return
	}

	s.publishSwitchChange(sw)

	writeJSON(w, http.StatusOK, sw)
}

// publishSwitchChange fans a switch transition out to the WebSocket hub
// and the telemetry store.
func (s *Server) publishSwitchChange(sw *device.Switch) {
	if s.hub != nil {
		s.hub.Broadcast("switch.changed", sw)
	}
	if s.tsdb != nil {
		s.tsdb.WritePoint("switch_state",
			map[string]string{"user_id": sw.UserID, "switch": sw.Name},
			map[string]interface{}{"is_on": sw.On},
		)
	}
}

// handleGetSwitch returns a single switch by name.
//
// GET /api/v1/switches/{name}
func (s *Server) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing session")
		return
	}

	sw, err := s.switches.Get(r.Context(), claims.UserID, chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, device.ErrSwitchNotFound) {
			writeNotFound(w, "switch not found")
			return
		}
		s.logger.Error("getting switch failed", "error", err)
		writeInternalError(w, "getting switch failed")
		return
	}

	writeJSON(w, http.StatusOK, sw)
}

// handleDeleteSwitch removes a switch.
//
// DELETE /api/v1/switches/{name}
func (s *Server) handleDeleteSwitch(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing session")
		return
	}

	if err := s.switches.Delete(r.Context(), claims.UserID, chi.URLParam(r, "name")); err != nil {
		if errors.Is(err, device.ErrSwitchNotFound) {
			writeNotFound(w, "switch not found")
			return
		}
		s.logger.Error("deleting switch failed", "error", err)
		writeInternalError(w, "deleting switch failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
