// Package mqtt wraps paho.mqtt.golang for the device presence feed.
//
// Devices publish their connection status to
// iotpro/conn/{user_id}/{device_id}; the server subscribes with a
// wildcard and mirrors the status into the connections table. The
// client handles auto-reconnect with exponential backoff, restores
// subscriptions after a reconnect, and announces its own liveness on
// iotpro/system/status with an LWT for crash detection.
//
// MQTT is optional: when mqtt.enabled is false in the configuration the
// server never connects and the HTTP API remains the only write path
// for connection state.
package mqtt
