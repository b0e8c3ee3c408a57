// Package api provides the HTTP REST API and WebSocket server for iotpro.
//
// It exposes account management (signup, login, recovery, deletion),
// per-user switch toggles, and device connection state to mobile and
// web clients, plus a WebSocket channel for live switch and connection
// events.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All methods are safe for concurrent use from multiple goroutines.
package api
