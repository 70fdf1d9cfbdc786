package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the registry's MQTT namespace.
const (
	TopicPrefix       = "tagregistry"
	TopicPrefixCore   = "tagregistry/core"
	TopicPrefixSystem = "tagregistry/system"
)

// Topics builds registry topic names.
//
//	topics := mqtt.Topics{}
//	topics.SignalValue("plc-1", "T1")   // tagregistry/value/plc-1/T1
//	topics.CoreDeviceTags("plc-1")      // tagregistry/core/device/plc-1/tags
type Topics struct{}

// SignalValue returns the topic a runtime publishes a tag's live value on.
func (Topics) SignalValue(device, tag string) string {
	return fmt.Sprintf("%s/value/%s/%s", TopicPrefix, device, tag)
}

// AllSignalValues matches every live value topic. Tag IDs may contain "/",
// so the tag spans all remaining levels.
//
// Pattern: tagregistry/value/+/#
func (Topics) AllSignalValues() string {
	return TopicPrefix + "/value/+/#"
}

// CoreDeviceTags returns the retained topic carrying a device's tag
// collection summary after each change.
func (Topics) CoreDeviceTags(device string) string {
	return fmt.Sprintf("%s/device/%s/tags", TopicPrefixCore, device)
}

// AllCoreDeviceTags matches every device summary topic.
//
// Pattern: tagregistry/core/device/+/tags
func (Topics) AllCoreDeviceTags() string {
	return TopicPrefixCore + "/device/+/tags"
}

// SystemStatus returns the registry online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseSignalValueTopic extracts the device and tag from a live value topic.
// The device is the first level after the prefix and the tag is everything
// after it, slashes included. It reports false for any other topic shape.
func ParseSignalValueTopic(topic string) (device, tag string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/value/")
	if !found {
		return "", "", false
	}
	device, tag, found = strings.Cut(rest, "/")
	if !found || device == "" || tag == "" {
		return "", "", false
	}
	return device, tag, true
}
