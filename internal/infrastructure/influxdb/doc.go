// Package influxdb records device connection telemetry.
//
// It wraps the official influxdb-client-go v2 library: token auth,
// non-blocking batched writes, and a ping-based health check. Each
// online/offline transition becomes a point in the connection_state
// measurement, tagged by user and device, so dashboards can chart
// per-device availability over time.
//
// InfluxDB is optional. When influxdb.enabled is false Connect returns
// ErrDisabled and callers run without telemetry; writes on a
// disconnected client are silently dropped.
package influxdb
