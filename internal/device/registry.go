package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeKind identifies the kind of persisted change a notification reports.
type ChangeKind string

// Change kinds.
const (
	ChangeCreated ChangeKind = "created"
	ChangeDeleted ChangeKind = "deleted"
	ChangeTags    ChangeKind = "tags"
)

// ChangeEvent describes a persisted change to a device.
type ChangeEvent struct {
	Device    string     `json:"device"`
	Type      DeviceType `json:"type"`
	Kind      ChangeKind `json:"kind"`
	TagCount  int        `json:"tag_count"`
	Timestamp time.Time  `json:"timestamp"`
}

// ChangeNotifier receives an event after every persisted mutation.
// Implementations must not block.
type ChangeNotifier interface {
	NotifyChange(ev ChangeEvent)
}

// deviceEntry guards one device. Structural mutations and overlays of the
// same device are serialised by mu; different devices proceed in parallel.
type deviceEntry struct {
	mu     sync.RWMutex
	device *Device
}

// Registry is the only entry point to the tag engine. It caches devices in
// memory, serialises mutations per device, persists every structural change
// through the Repository and overlays live values.
//
// All public methods are thread-safe.
type Registry struct {
	repo      Repository
	entries   map[string]*deviceEntry // by device name
	entriesMu sync.RWMutex            // protects entries
	logger    Logger
	notifier  ChangeNotifier
}

// NewRegistry creates a new device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:    repo,
		entries: make(map[string]*deviceEntry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// SetNotifier sets the receiver of change events. Nil disables notification.
func (r *Registry) SetNotifier(n ChangeNotifier) {
	r.notifier = n
}

// RefreshCache reloads all devices from the repository.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	entries := make(map[string]*deviceEntry, len(devices))
	for i := range devices {
		d := devices[i].DeepCopy()
		d.Normalise()
		entries[d.Name] = &deviceEntry{device: d}
	}

	r.entriesMu.Lock()
	r.entries = entries
	r.entriesMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

func (r *Registry) entry(name string) (*deviceEntry, error) {
	r.entriesMu.RLock()
	e, ok := r.entries[name]
	r.entriesMu.RUnlock()
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return e, nil
}

// GetDevice returns a deep copy of the named device.
func (r *Registry) GetDevice(_ context.Context, name string) (*Device, error) {
	e, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.device.DeepCopy(), nil
}

// ListDevices returns deep copies of all devices ordered by name.
func (r *Registry) ListDevices(_ context.Context) []Device {
	r.entriesMu.RLock()
	entries := make([]*deviceEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.entriesMu.RUnlock()

	devices := make([]Device, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		devices = append(devices, *e.device.DeepCopy())
		e.mu.RUnlock()
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// GetDeviceCount returns the number of cached devices.
func (r *Registry) GetDeviceCount() int {
	r.entriesMu.RLock()
	defer r.entriesMu.RUnlock()
	return len(r.entries)
}

// CreateDevice validates and persists a new device. Tags supplied with the
// device are normalised and merged through the reconciler.
func (r *Registry) CreateDevice(ctx context.Context, d *Device) error {
	if err := ValidateDevice(d); err != nil {
		return err
	}

	created := NewDevice(d.Name, d.Type)
	src := d.DeepCopy()
	src.Normalise()
	for _, key := range sortedKeys(src.Tags) {
		t := src.Tags[key]
		t.Value = nil
		c, err := NewCandidate(*t)
		if err != nil {
			return err
		}
		Reconcile(c, created)
	}

	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()

	if _, exists := r.entries[created.Name]; exists {
		return ErrDeviceExists
	}
	if err := r.repo.Create(ctx, created); err != nil {
		return err
	}
	r.entries[created.Name] = &deviceEntry{device: created}

	*d = *created.DeepCopy()
	r.logger.Info("device created", "name", created.Name, "type", created.Type, "tags", created.TagCount())
	r.notify(created, ChangeCreated)
	return nil
}

// DeleteDevice removes a device and all of its tags.
func (r *Registry) DeleteDevice(ctx context.Context, name string) error {
	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return ErrDeviceNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := r.repo.Delete(ctx, name); err != nil {
		return err
	}
	delete(r.entries, name)

	r.logger.Info("device deleted", "name", name)
	r.notify(&Device{Name: name, Type: e.device.Type}, ChangeDeleted)
	return nil
}

// mutate runs fn on a copy of the named device while holding its write lock.
// When fn reports a change, the copy is persisted and then replaces the
// cached device; on any error the cached device is left as it was.
func (r *Registry) mutate(ctx context.Context, name string, fn func(d *Device) (bool, error)) (*Device, error) {
	e, err := r.entry(name)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.device.DeepCopy()
	changed, err := fn(work)
	if err != nil {
		return nil, err
	}
	if !changed {
		return work, nil
	}

	if err := r.repo.SetDeviceTags(ctx, work); err != nil {
		return nil, fmt.Errorf("persisting tags of %q: %w", name, err)
	}
	e.device = work

	r.notify(work, ChangeTags)
	return work.DeepCopy(), nil
}

// ImportDiscovered merges discovered nodes into the named device.
func (r *Registry) ImportDiscovered(ctx context.Context, name string, nodes []DiscoveredNode) (ImportResult, error) {
	if err := ValidateImport(nodes); err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	_, err := r.mutate(ctx, name, func(d *Device) (bool, error) {
		var importErr error
		res, importErr = ImportDiscovered(nodes, d)
		if importErr != nil {
			return false, importErr
		}
		return res.Added > 0 || res.Cleared, nil
	})
	if err != nil {
		return ImportResult{}, err
	}

	r.logger.Info("discovered tags imported",
		"device", name,
		"added", res.Added,
		"skipped", res.Skipped,
		"invalid", res.Invalid,
		"cleared", res.Cleared,
	)
	return res, nil
}

// EditRequest is a single tag edit. OriginalID is empty when adding a tag.
// For MQTT devices the edit is a topic re-browse and Nodes carries the
// selected topics.
type EditRequest struct {
	OriginalID string           `json:"original_id"`
	Draft      TagDraft         `json:"tag"`
	Nodes      []DiscoveredNode `json:"nodes,omitempty"`
}

// EditResult reports the effect of EditTag.
type EditResult struct {
	Outcome EditOutcome   `json:"-"`
	Status  string        `json:"outcome"`
	ID      string        `json:"id,omitempty"`
	Import  *ImportResult `json:"import,omitempty"`
}

// EditTag applies a single tag edit to the named device.
func (r *Registry) EditTag(ctx context.Context, name string, req EditRequest) (EditResult, error) {
	var result EditResult
	_, err := r.mutate(ctx, name, func(d *Device) (bool, error) {
		if d.Type == DeviceTypeMQTTClient {
			res, importErr := ImportDiscovered(req.Nodes, d)
			if importErr != nil {
				return false, importErr
			}
			result.Outcome = EditAdded
			if res.Added == 0 {
				result.Outcome = EditRejected
			}
			result.Import = &res
			return res.Added > 0, nil
		}

		if err := ValidateTagDraft(d.Type, req.Draft); err != nil {
			return false, err
		}
		outcome, editErr := ApplyEdit(req.OriginalID, req.Draft, d)
		if editErr != nil {
			return false, editErr
		}
		result.Outcome = outcome
		if outcome != EditRejected {
			result.ID = editedID(req, d.Type)
		}
		return outcome != EditRejected, nil
	})
	if err != nil {
		return EditResult{}, err
	}
	result.Status = result.Outcome.String()

	if result.Outcome == EditRejected && result.Import == nil {
		r.logger.Warn("tag edit rejected, identity already in use",
			"device", name, "original_id", req.OriginalID, "name", req.Draft.Name)
	} else {
		r.logger.Info("tag edited", "device", name, "outcome", result.Status, "id", result.ID)
	}
	return result, nil
}

func editedID(req EditRequest, t DeviceType) string {
	if IdentityFollowsName(t) || req.OriginalID == "" {
		return req.Draft.Name
	}
	return req.OriginalID
}

// RemoveTag deletes one tag. Removing an absent tag is not an error.
func (r *Registry) RemoveTag(ctx context.Context, name, id string) (bool, error) {
	var removed bool
	_, err := r.mutate(ctx, name, func(d *Device) (bool, error) {
		removed = RemoveTag(d, id)
		return removed, nil
	})
	if err != nil {
		return false, err
	}
	if removed {
		r.logger.Info("tag removed", "device", name, "id", id)
	}
	return removed, nil
}

// ClearTags removes every tag of the named device. Confirmation is the
// caller's responsibility.
func (r *Registry) ClearTags(ctx context.Context, name string) (int, error) {
	var n int
	_, err := r.mutate(ctx, name, func(d *Device) (bool, error) {
		n = ClearAll(d)
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	r.logger.Info("tags cleared", "device", name, "removed", n)
	return n, nil
}

// ValueUpdate is one tag value written by Overlay.
type ValueUpdate struct {
	Key   SignalKey
	Value any
}

// Overlay writes live values onto cached tags and returns the updates that
// matched a loaded device and tag. Each device is locked only while its own
// values are written.
func (r *Registry) Overlay(signals map[SignalKey]SignalValue) []ValueUpdate {
	byDevice := make(map[string]map[SignalKey]SignalValue)
	for k, v := range signals {
		if byDevice[k.Device] == nil {
			byDevice[k.Device] = make(map[SignalKey]SignalValue)
		}
		byDevice[k.Device][k] = v
	}

	var updates []ValueUpdate
	for name, sigs := range byDevice {
		e, err := r.entry(name)
		if err != nil {
			continue
		}
		e.mu.Lock()
		overlayDevice(e.device, sigs, func(k SignalKey, v any) {
			updates = append(updates, ValueUpdate{Key: k, Value: v})
		})
		e.mu.Unlock()
	}
	return updates
}

// TagView is a tag as presented to clients, with its resolved address and
// display label.
type TagView struct {
	Tag
	AddressDisplay string `json:"address_display"`
	LabelDisplay   string `json:"label_display"`
}

// TagViews returns the tags of the named device ordered by ID.
func (r *Registry) TagViews(ctx context.Context, name string) ([]TagView, error) {
	d, err := r.GetDevice(ctx, name)
	if err != nil {
		return nil, err
	}
	return NewTagViews(d), nil
}

// NewTagViews builds views of all tags of d ordered by ID.
func NewTagViews(d *Device) []TagView {
	views := make([]TagView, 0, len(d.Tags))
	for _, key := range sortedKeys(d.Tags) {
		t := d.Tags[key]
		views = append(views, TagView{
			Tag:            *t.Clone(),
			AddressDisplay: ResolveAddress(t, d.Type),
			LabelDisplay:   DisplayLabel(t, d.Type),
		})
	}
	return views
}

func (r *Registry) notify(d *Device, kind ChangeKind) {
	if r.notifier == nil {
		return
	}
	r.notifier.NotifyChange(ChangeEvent{
		Device:    d.Name,
		Type:      d.Type,
		Kind:      kind,
		TagCount:  d.TagCount(),
		Timestamp: time.Now().UTC(),
	})
}
