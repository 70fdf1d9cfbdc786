package signal

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tagregistry/internal/device"
)

// ChannelTagValues is the WebSocket channel carrying value changes.
const ChannelTagValues = "tag.values"

// Overlayer applies typed signals to the registry.
type Overlayer interface {
	Overlay(signals map[device.SignalKey]device.SignalValue) []device.ValueUpdate
}

// Recorder stores value history.
type Recorder interface {
	WriteTagValue(deviceName, tagID string, value any, ts time.Time)
}

// Broadcaster pushes a payload to subscribers of a channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// TagValue is one changed value as forwarded to recorders and broadcasters.
type TagValue struct {
	Device    string    `json:"device"`
	Tag       string    `json:"tag"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Refresher periodically overlays a Source onto the registry.
type Refresher struct {
	source   Source
	target   Overlayer
	interval time.Duration

	recorder    Recorder
	broadcaster Broadcaster
	logger      Logger
	now         func() time.Time

	// last holds the value last forwarded per key so unchanged values are
	// not re-recorded.
	mu   sync.Mutex
	last map[device.SignalKey]any
}

// NewRefresher creates a refresher polling source every interval.
func NewRefresher(source Source, target Overlayer, interval time.Duration) *Refresher {
	return &Refresher{
		source:   source,
		target:   target,
		interval: interval,
		logger:   noopLogger{},
		now:      time.Now,
		last:     make(map[device.SignalKey]any),
	}
}

// SetRecorder sets the value history sink.
func (r *Refresher) SetRecorder(rec Recorder) { r.recorder = rec }

// SetBroadcaster sets the live value fan-out.
func (r *Refresher) SetBroadcaster(b Broadcaster) { r.broadcaster = b }

// SetLogger sets the logger.
func (r *Refresher) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
// Refresh errors are logged and do not stop the loop.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refreshAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshAndLog(ctx)
		}
	}
}

func (r *Refresher) refreshAndLog(ctx context.Context) {
	changed, err := r.Refresh(ctx)
	if err != nil {
		r.logger.Warn("signal refresh failed", "error", err)
		return
	}
	if changed > 0 {
		r.logger.Debug("signal refresh", "changed", changed)
	}
}

// Refresh takes one snapshot, overlays it and forwards changed values.
// It returns the number of changed values.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	raw, err := r.source.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("taking signal snapshot: %w", err)
	}

	updates := r.target.Overlay(device.ParseSignals(raw))
	changed := r.changed(updates)
	if len(changed) == 0 {
		return 0, nil
	}

	ts := r.now().UTC()
	values := make([]TagValue, len(changed))
	for i, u := range changed {
		values[i] = TagValue{Device: u.Key.Device, Tag: u.Key.Tag, Value: u.Value, Timestamp: ts}
		if r.recorder != nil {
			r.recorder.WriteTagValue(u.Key.Device, u.Key.Tag, u.Value, ts)
		}
	}
	if r.broadcaster != nil {
		r.broadcaster.Broadcast(ChannelTagValues, values)
	}
	return len(changed), nil
}

// changed filters updates to those whose value differs from the last
// forwarded one, sorted by device then tag.
func (r *Refresher) changed(updates []device.ValueUpdate) []device.ValueUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []device.ValueUpdate
	for _, u := range updates {
		if prev, ok := r.last[u.Key]; ok && reflect.DeepEqual(prev, u.Value) {
			continue
		}
		r.last[u.Key] = u.Value
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b device.ValueUpdate) int {
		return cmp.Or(cmp.Compare(a.Key.Device, b.Key.Device), cmp.Compare(a.Key.Tag, b.Key.Tag))
	})
	return out
}
