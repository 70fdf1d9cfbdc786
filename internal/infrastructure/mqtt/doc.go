// Package mqtt provides the MQTT client used by the tag registry.
//
// The registry uses the broker in two directions:
//
//   - Runtimes publish live tag values on tagregistry/value/{device}/{tag},
//     which the signal package subscribes to and overlays onto tags.
//   - The registry publishes a retained summary on
//     tagregistry/core/device/{device}/tags whenever a device's tag
//     collection changes.
//
// The client reconnects automatically, restores tracked subscriptions, and
// maintains a retained status message on tagregistry/system/status backed
// by a Last Will.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSignalValues(), 1,
//	    func(topic string, payload []byte) error {
//	        device, tag, _ := mqtt.ParseSignalValueTopic(topic)
//	        ...
//	    })
package mqtt
