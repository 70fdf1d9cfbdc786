package signal

import (
	"context"
	"maps"
	"sync"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/mqtt"
)

// Subscriber is the part of the MQTT client used by MQTTSource.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// MQTTSource caches the latest value published for each signal topic.
// Snapshot returns the cache; it never touches the network.
type MQTTSource struct {
	sub    Subscriber
	qos    byte
	topic  string
	logger Logger

	mu     sync.RWMutex
	values map[string]device.SignalValue
}

// NewMQTTSource creates a source reading tagregistry/value/+/# through sub.
func NewMQTTSource(sub Subscriber, qos byte) *MQTTSource {
	return &MQTTSource{
		sub:    sub,
		qos:    qos,
		topic:  mqtt.Topics{}.AllSignalValues(),
		logger: noopLogger{},
		values: make(map[string]device.SignalValue),
	}
}

// SetLogger sets the logger used for rejected messages.
func (s *MQTTSource) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start subscribes to the value topics.
func (s *MQTTSource) Start() error {
	return s.sub.Subscribe(s.topic, s.qos, s.handleMessage)
}

// Stop unsubscribes. Cached values are kept.
func (s *MQTTSource) Stop() error {
	return s.sub.Unsubscribe(s.topic)
}

func (s *MQTTSource) handleMessage(topic string, payload []byte) error {
	dev, tag, ok := mqtt.ParseSignalValueTopic(topic)
	if !ok {
		s.logger.Debug("ignoring non-signal topic", "topic", topic)
		return nil
	}

	// An empty retained payload clears the value.
	if len(payload) == 0 {
		s.mu.Lock()
		delete(s.values, device.SignalKey{Device: dev, Tag: tag}.String())
		s.mu.Unlock()
		return nil
	}

	sig, err := DecodeValue(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.values[device.SignalKey{Device: dev, Tag: tag}.String()] = sig
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the cached values.
func (s *MQTTSource) Snapshot(context.Context) (map[string]device.SignalValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values), nil
}
