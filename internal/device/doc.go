// Package device holds the per-user device glue: named boolean
// switches and device connection state.
//
// Switches are free-form toggles keyed by (user, name); the name is a
// short slug chosen by the client. Connections track whether a physical
// device is reachable, fed either by the HTTP API or by MQTT presence
// messages. Both tables cascade with the owning user, so account
// deletion leaves no orphans.
package device
