package signal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
)

// fakeTarget applies overlays to an in-memory device set the same way the
// registry does.
type fakeTarget struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newFakeTarget() *fakeTarget {
	d := device.NewDevice("0", device.DeviceTypeOPCUA)
	d.Tags["T1"] = &device.Tag{ID: "T1", Name: "T1"}
	d.Tags["T2"] = &device.Tag{ID: "T2", Name: "T2"}
	return &fakeTarget{devices: map[string]*device.Device{"0": d}}
}

func (f *fakeTarget) Overlay(signals map[device.SignalKey]device.SignalValue) []device.ValueUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []device.ValueUpdate
	for k, v := range signals {
		d, ok := f.devices[k.Device]
		if !ok {
			continue
		}
		t, ok := d.Tags[k.Tag]
		if !ok {
			continue
		}
		t.Value = v.Value
		out = append(out, device.ValueUpdate{Key: k, Value: v.Value})
	}
	return out
}

func (f *fakeTarget) value(dev, tag string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[dev].Tags[tag].Value
}

type recordedValue struct {
	device, tag string
	value       any
}

type fakeRecorder struct {
	mu     sync.Mutex
	writes []recordedValue
}

func (f *fakeRecorder) WriteTagValue(dev, tag string, value any, _ time.Time) {
	f.mu.Lock()
	f.writes = append(f.writes, recordedValue{dev, tag, value})
	f.mu.Unlock()
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	channels []string
	batches  [][]TagValue
}

func (f *fakeBroadcaster) Broadcast(channel string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	if values, ok := payload.([]TagValue); ok {
		f.batches = append(f.batches, values)
	}
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type failingSource struct{}

func (failingSource) Snapshot(context.Context) (map[string]device.SignalValue, error) {
	return nil, errors.New("broker unavailable")
}

func TestRefreshOverlaysScopedValues(t *testing.T) {
	src := NewStaticSource(map[string]device.SignalValue{
		"0#T1":    {Value: 5.0},
		"1#T1":    {Value: 9.0}, // unknown device
		"0#Other": {Value: 1.0}, // unknown tag
		"garbage": {Value: 2.0}, // no separator
	})
	target := newFakeTarget()
	rec := &fakeRecorder{}
	bc := &fakeBroadcaster{}

	r := NewRefresher(src, target, time.Second)
	r.SetRecorder(rec)
	r.SetBroadcaster(bc)

	changed, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if changed != 1 {
		t.Errorf("Refresh() changed = %d, want 1", changed)
	}
	if got := target.value("0", "T1"); got != 5.0 {
		t.Errorf("0/T1 value = %v, want 5", got)
	}
	if got := target.value("0", "T2"); got != nil {
		t.Errorf("0/T2 value = %v, want nil", got)
	}

	if len(rec.writes) != 1 || rec.writes[0] != (recordedValue{"0", "T1", 5.0}) {
		t.Errorf("recorded = %+v", rec.writes)
	}
	if len(bc.channels) != 1 || bc.channels[0] != ChannelTagValues {
		t.Errorf("broadcast channels = %v", bc.channels)
	}
	if len(bc.batches[0]) != 1 || bc.batches[0][0].Tag != "T1" {
		t.Errorf("broadcast batch = %+v", bc.batches[0])
	}
}

func TestRefreshForwardsOnlyChanges(t *testing.T) {
	src := NewStaticSource(map[string]device.SignalValue{
		"0#T1": {Value: 1.0},
		"0#T2": {Value: true},
	})
	target := newFakeTarget()
	rec := &fakeRecorder{}
	r := NewRefresher(src, target, time.Second)
	r.SetRecorder(rec)
	ctx := context.Background()

	if n, _ := r.Refresh(ctx); n != 2 {
		t.Fatalf("first Refresh() changed = %d, want 2", n)
	}
	if n, _ := r.Refresh(ctx); n != 0 {
		t.Errorf("unchanged Refresh() changed = %d, want 0", n)
	}

	src.Set("0#T1", 2.0)
	if n, _ := r.Refresh(ctx); n != 1 {
		t.Errorf("Refresh() after change changed = %d, want 1", n)
	}

	if len(rec.writes) != 3 {
		t.Errorf("recorded %d values, want 3", len(rec.writes))
	}
	// Sorted by device then tag within a batch.
	if rec.writes[0].tag != "T1" || rec.writes[1].tag != "T2" {
		t.Errorf("first batch order = %+v", rec.writes[:2])
	}
}

func TestRefreshSourceError(t *testing.T) {
	r := NewRefresher(failingSource{}, newFakeTarget(), time.Second)
	if _, err := r.Refresh(context.Background()); err == nil {
		t.Error("Refresh() should surface snapshot errors")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := NewStaticSource(map[string]device.SignalValue{"0#T1": {Value: 1.0}})
	bc := &fakeBroadcaster{}
	r := NewRefresher(src, newFakeTarget(), 10*time.Millisecond)
	r.SetBroadcaster(bc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// The initial refresh happens before the first tick.
	deadline := time.After(2 * time.Second)
	for bc.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("Run() did not refresh")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
