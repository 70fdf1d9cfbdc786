package main

import (
	"context"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/mqtt"
)

// notifyQueueSize bounds the change events waiting to be published.
const notifyQueueSize = 64

// publisher is the part of the MQTT client used by the notifier.
type publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	PublishRetained(topic string, payload []byte) error
}

// mqttNotifier publishes registry change events as retained messages on
// tagregistry/core/device/{name}/tags. NotifyChange only queues the event;
// Run does the publishing, so registry locks are never held across network
// I/O. When the queue is full the event is dropped and logged.
type mqttNotifier struct {
	pub    publisher
	log    *logging.Logger
	events chan device.ChangeEvent
}

func newMQTTNotifier(pub publisher, log *logging.Logger) *mqttNotifier {
	return &mqttNotifier{
		pub:    pub,
		log:    log,
		events: make(chan device.ChangeEvent, notifyQueueSize),
	}
}

// NotifyChange implements device.ChangeNotifier.
func (n *mqttNotifier) NotifyChange(ev device.ChangeEvent) {
	select {
	case n.events <- ev:
	default:
		n.log.Warn("change notification dropped, queue full", "device", ev.Device, "kind", ev.Kind)
	}
}

// Run publishes queued events until ctx is done.
func (n *mqttNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.events:
			n.publish(ev)
		}
	}
}

func (n *mqttNotifier) publish(ev device.ChangeEvent) {
	topic := mqtt.Topics{}.CoreDeviceTags(ev.Device)

	var err error
	if ev.Kind == device.ChangeDeleted {
		// An empty retained message clears the summary of a deleted device.
		err = n.pub.PublishRetained(topic, nil)
	} else {
		err = n.pub.PublishJSON(topic, ev, true)
	}
	if err != nil {
		n.log.Warn("publishing change notification failed",
			"device", ev.Device,
			"kind", ev.Kind,
			"error", err,
		)
		return
	}
	n.log.Debug("change notification published", "topic", topic, "kind", ev.Kind)
}
