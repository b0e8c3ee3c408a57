package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AlienQ7/iotpro/internal/device"
	"github.com/AlienQ7/iotpro/internal/infrastructure/mqtt"
)

// handleListConnections returns the connection state of all the
// caller's devices.
//
// GET /api/v1/connections
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing session")
		return
	}

	conns, err := s.connections.List(r.Context(), claims.UserID)
	if err != nil {
		s.logger.Error("listing connections failed", "error", err)
		writeInternalError(w, "listing connections failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

// upsertConnectionRequest is the request body for POST /connections.
type upsertConnectionRequest struct {
	DeviceID string `json:"device_id"`
	Status   string `json:"status"`
}

// handleUpsertConnection records a device's connection status,
// broadcasts the change, and writes a telemetry point.
//
// POST /api/v1/connections
func (s *Server) handleUpsertConnection(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing session")
		return
	}

	var req upsertConnectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	conn, err := s.connections.Upsert(r.Context(), claims.UserID, req.DeviceID, req.Status)
	if err != nil {
		if errors.Is(err, device.ErrInvalidName) || errors.Is(err, device.ErrInvalidStatus) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("upserting connection failed", "error", err)
		writeInternalError(w, "upserting connection failed")
		return
	}

	s.publishConnectionChange(conn)

	writeJSON(w, http.StatusOK, conn)
}

// handleDeleteConnection removes a connection row.
//
// DELETE /api/v1/connections/{deviceID}
func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing session")
		return
	}

	deviceID := chi.URLParam(r, "deviceID")
	if err := s.connections.Delete(r.Context(), claims.UserID, deviceID); err != nil {
		if errors.Is(err, device.ErrConnectionNotFound) {
			writeNotFound(w, "connection not found")
			return
		}
		s.logger.Error("deleting connection failed", "error", err)
		writeInternalError(w, "deleting connection failed")
		return
	}

	// Clear any retained presence message for the device so the broker
	// stops replaying stale state to new subscribers.
	if s.mqtt != nil {
		topic := mqtt.Topics{}.DeviceConnection(claims.UserID, deviceID)
		if err := s.mqtt.Publish(topic, nil, 1, true); err != nil {
			s.logger.Warn("failed to clear retained presence", "topic", topic, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// publishConnectionChange fans a connection transition out to the
// WebSocket hub and the telemetry store.
func (s *Server) publishConnectionChange(conn *device.Connection) {
	if s.hub != nil {
		s.hub.Broadcast("connection.changed", conn)
	}
	if s.tsdb != nil {
		s.tsdb.WriteConnectionState(conn.UserID, conn.DeviceID, conn.Status == device.StatusOnline)
	}
}
