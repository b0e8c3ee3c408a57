package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the iotpro MQTT hierarchy.
//
// Presence topics use the scheme: iotpro/conn/{user_id}/{device_id}
const (
	// TopicPrefix is the base for all iotpro topics.
	TopicPrefix = "iotpro"

	// TopicPrefixConn is the base for device presence topics.
	TopicPrefixConn = "iotpro/conn"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "iotpro/system"
)

// Topics provides builders for iotpro MQTT topics. Using these helpers
// keeps topic naming consistent between publishers and subscribers.
type Topics struct{}

// DeviceConnection returns the presence topic for one device.
//
// Example: iotpro/conn/usr-a1b2c3d4/thermostat-01
func (Topics) DeviceConnection(userID, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixConn, userID, deviceID)
}

// AllDeviceConnections returns a pattern matching every device's
// presence topic.
//
// Pattern: iotpro/conn/+/+
func (Topics) AllDeviceConnections() string {
	return TopicPrefixConn + "/+/+"
}

// SystemStatus returns the server liveness topic.
//
// Example: iotpro/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseConnectionTopic extracts the user and device IDs from a presence
// topic. Returns false for topics outside the conn hierarchy or with
// the wrong depth.
func ParseConnectionTopic(topic string) (userID, deviceID string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixConn+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
