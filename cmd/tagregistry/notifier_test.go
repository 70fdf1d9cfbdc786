package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tagregistry/internal/infrastructure/logging"
)

type publishCall struct {
	topic    string
	value    any
	payload  []byte
	retained bool
	json     bool
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (p *fakePublisher) PublishJSON(topic string, v any, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{topic: topic, value: v, retained: retained, json: true})
	return p.err
}

func (p *fakePublisher) PublishRetained(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, publishCall{topic: topic, payload: payload, retained: true})
	return p.err
}

func (p *fakePublisher) snapshot() []publishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishCall(nil), p.calls...)
}

func discardLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, "test", io.Discard)
}

func TestNotifier_Publish(t *testing.T) {
	pub := &fakePublisher{}
	n := newMQTTNotifier(pub, discardLogger())

	n.publish(device.ChangeEvent{Device: "plc1", Type: device.DeviceTypeModbusTCP, Kind: device.ChangeTags, TagCount: 3})
	n.publish(device.ChangeEvent{Device: "plc1", Type: device.DeviceTypeModbusTCP, Kind: device.ChangeDeleted})

	calls := pub.snapshot()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}

	const topic = "tagregistry/core/device/plc1/tags"
	tags := calls[0]
	if !tags.json || !tags.retained || tags.topic != topic {
		t.Errorf("tags change published as %+v", tags)
	}
	if ev, ok := tags.value.(device.ChangeEvent); !ok || ev.TagCount != 3 {
		t.Errorf("tags change payload = %#v", tags.value)
	}

	deleted := calls[1]
	if deleted.json || !deleted.retained || deleted.topic != topic || len(deleted.payload) != 0 {
		t.Errorf("delete published as %+v, want empty retained message", deleted)
	}
}

func TestNotifier_PublishErrorIsLogged(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	n := newMQTTNotifier(pub, discardLogger())

	n.publish(device.ChangeEvent{Device: "plc1", Kind: device.ChangeCreated})

	if len(pub.snapshot()) != 1 {
		t.Error("publish should be attempted once")
	}
}

func TestNotifier_DropsWhenQueueFull(t *testing.T) {
	n := newMQTTNotifier(&fakePublisher{}, discardLogger())

	for i := 0; i < notifyQueueSize+5; i++ {
		n.NotifyChange(device.ChangeEvent{Device: "plc1", Kind: device.ChangeTags, TagCount: i})
	}

	if got := len(n.events); got != notifyQueueSize {
		t.Errorf("queued = %d, want %d", got, notifyQueueSize)
	}
}

func TestNotifier_RunPublishesQueuedEvents(t *testing.T) {
	pub := &fakePublisher{}
	n := newMQTTNotifier(pub, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.NotifyChange(device.ChangeEvent{Device: "plc1", Kind: device.ChangeCreated})
	n.NotifyChange(device.ChangeEvent{Device: "plc2", Kind: device.ChangeCreated})

	deadline := time.Now().Add(5 * time.Second)
	for len(pub.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(pub.snapshot()); got != 2 {
		t.Errorf("published = %d, want 2", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
