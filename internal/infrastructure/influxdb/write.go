package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteConnectionState records one device connection transition.
//
// The write is non-blocking; points are batched and sent
// asynchronously. Online is recorded as 1, offline as 0, so mean() over
// a window reads directly as availability.
func (c *Client) WriteConnectionState(userID, deviceID string, online bool) {
	if !c.IsConnected() {
		return
	}

	state := 0
	if online {
		state = 1
	}

	point := write.NewPoint(
		"connection_state",
		map[string]string{
			"user_id":   userID,
			"device_id": deviceID,
		},
		map[string]interface{}{
			"online": state,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and
// fields. Tags index the point and should stay low-cardinality.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
