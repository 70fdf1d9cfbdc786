package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu      sync.Mutex
	devices map[string]*Device
	setTags int
	// For testing error paths
	listErr    error
	createErr  error
	deleteErr  error
	setTagsErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices: make(map[string]*Device),
	}
}

func (m *MockRepository) List(_ context.Context) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	devices := make([]Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, *d.DeepCopy())
	}
	return devices, nil
}

func (m *MockRepository) Get(_ context.Context, name string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.devices[name]; ok {
		return d.DeepCopy(), nil
	}
	return nil, ErrDeviceNotFound
}

func (m *MockRepository) Create(_ context.Context, device *Device) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[device.Name]; exists {
		return ErrDeviceExists
	}
	m.devices[device.Name] = device.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, name string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[name]; !exists {
		return ErrDeviceNotFound
	}
	delete(m.devices, name)
	return nil
}

func (m *MockRepository) SetDeviceTags(_ context.Context, device *Device) error {
	if m.setTagsErr != nil {
		return m.setTagsErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[device.Name]; !exists {
		return ErrDeviceNotFound
	}
	m.devices[device.Name] = device.DeepCopy()
	m.setTags++
	return nil
}

func (m *MockRepository) addDevice(d *Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.Name] = d.DeepCopy()
}

func (m *MockRepository) setTagsCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setTags
}

// recordingNotifier collects change events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (n *recordingNotifier) NotifyChange(ev ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []ChangeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ChangeKind, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestRegistry(t *testing.T, devices ...*Device) (*Registry, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	for _, d := range devices {
		repo.addDevice(d)
	}
	reg := NewRegistry(repo)
	if err := reg.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return reg, repo
}

func TestRegistry_RefreshCache(t *testing.T) {
	legacy := &Device{
		Name: "old",
		Type: DeviceTypeModbusTCP,
		Tags: map[string]*Tag{"k": {Name: "level", Address: "1"}},
	}
	reg, _ := newTestRegistry(t, legacy, testDevice("plc-1"))

	if reg.GetDeviceCount() != 2 {
		t.Errorf("GetDeviceCount() = %d, want 2", reg.GetDeviceCount())
	}
	d, err := reg.GetDevice(context.Background(), "old")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if _, ok := d.Tags["level"]; !ok {
		t.Errorf("legacy tag not normalised: %v", d.Tags)
	}
}

func TestRegistry_RefreshCacheError(t *testing.T) {
	repo := NewMockRepository()
	repo.listErr = errors.New("disk on fire")
	reg := NewRegistry(repo)

	if err := reg.RefreshCache(context.Background()); err == nil {
		t.Error("RefreshCache() error = nil, want error")
	}
}

func TestRegistry_GetDeviceReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("plc-1"))
	ctx := context.Background()

	d, _ := reg.GetDevice(ctx, "plc-1")
	d.Tags["flow"].Address = "999"
	delete(d.Tags, "pressure")

	again, _ := reg.GetDevice(ctx, "plc-1")
	if again.Tags["flow"].Address != "100" || again.TagCount() != 2 {
		t.Error("GetDevice() exposed cached state to mutation")
	}

	if _, err := reg.GetDevice(ctx, "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice(missing) error = %v", err)
	}
}

func TestRegistry_ListDevicesSorted(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("c"), testDevice("a"), testDevice("b"))

	devices := reg.ListDevices(context.Background())
	if len(devices) != 3 {
		t.Fatalf("len = %d, want 3", len(devices))
	}
	for i, want := range []string{"a", "b", "c"} {
		if devices[i].Name != want {
			t.Errorf("devices[%d] = %q, want %q", i, devices[i].Name, want)
		}
	}
}

func TestRegistry_CreateDevice(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t)
	notifier := &recordingNotifier{}
	reg.SetNotifier(notifier)

	d := &Device{
		Name: "ahu",
		Type: DeviceTypeBACnet,
		Tags: map[string]*Tag{
			"AI:1": {ID: "AI:1", Name: "AI:1", Label: "Supply", Value: 20},
			"x":    {Name: "AI:2"},
		},
	}
	if err := reg.CreateDevice(ctx, d); err != nil {
		t.Fatalf("CreateDevice() error = %v", err)
	}
	if d.TagCount() != 2 {
		t.Errorf("TagCount() = %d, want 2", d.TagCount())
	}
	if _, ok := d.Tags["AI:2"]; !ok {
		t.Error("tag without id not keyed by name")
	}
	if d.Tags["AI:1"].Value != nil {
		t.Error("runtime value accepted on create")
	}

	stored, err := repo.Get(ctx, "ahu")
	if err != nil || stored.TagCount() != 2 {
		t.Errorf("repository state = %+v, %v", stored, err)
	}
	if kinds := notifier.kinds(); len(kinds) != 1 || kinds[0] != ChangeCreated {
		t.Errorf("events = %v, want [created]", kinds)
	}

	if err := reg.CreateDevice(ctx, NewDevice("ahu", DeviceTypeBACnet)); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("CreateDevice(duplicate) error = %v", err)
	}
	if err := reg.CreateDevice(ctx, NewDevice("bad#name", DeviceTypeBACnet)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("CreateDevice(bad name) error = %v", err)
	}
	if err := reg.CreateDevice(ctx, NewDevice("x", "Profinet")); !errors.Is(err, ErrInvalidDeviceType) {
		t.Errorf("CreateDevice(bad type) error = %v", err)
	}
}

func TestRegistry_CreateDeviceRepositoryError(t *testing.T) {
	reg, repo := newTestRegistry(t)
	repo.createErr = errors.New("write failed")

	if err := reg.CreateDevice(context.Background(), NewDevice("plc", DeviceTypeModbusTCP)); err == nil {
		t.Fatal("CreateDevice() error = nil")
	}
	if reg.GetDeviceCount() != 0 {
		t.Error("device cached despite repository failure")
	}
}

func TestRegistry_DeleteDevice(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, testDevice("plc-1"))
	notifier := &recordingNotifier{}
	reg.SetNotifier(notifier)

	if err := reg.DeleteDevice(ctx, "plc-1"); err != nil {
		t.Fatalf("DeleteDevice() error = %v", err)
	}
	if _, err := reg.GetDevice(ctx, "plc-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete error = %v", err)
	}
	if err := reg.DeleteDevice(ctx, "plc-1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("DeleteDevice(missing) error = %v", err)
	}
	if kinds := notifier.kinds(); len(kinds) != 1 || kinds[0] != ChangeDeleted {
		t.Errorf("events = %v, want [deleted]", kinds)
	}
}

func TestRegistry_ImportDiscovered(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t, NewDevice("server", DeviceTypeOPCUA))

	nodes := []DiscoveredNode{{ID: "n1", Type: TagTypeBool}, {ID: "n2"}}
	res, err := reg.ImportDiscovered(ctx, "server", nodes)
	if err != nil {
		t.Fatalf("ImportDiscovered() error = %v", err)
	}
	if res.Added != 2 {
		t.Errorf("Added = %d, want 2", res.Added)
	}
	if repo.setTagsCalls() != 1 {
		t.Errorf("SetDeviceTags calls = %d, want 1", repo.setTagsCalls())
	}

	res, err = reg.ImportDiscovered(ctx, "server", nodes)
	if err != nil {
		t.Fatalf("re-import error = %v", err)
	}
	if res.Added != 0 || res.Skipped != 2 {
		t.Errorf("re-import result = %+v", res)
	}
	if repo.setTagsCalls() != 1 {
		t.Errorf("no-op import persisted: calls = %d", repo.setTagsCalls())
	}

	if _, err := reg.ImportDiscovered(ctx, "missing", nodes); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ImportDiscovered(missing) error = %v", err)
	}
}

func TestRegistry_ImportDiscoveredWebAPIReplacesAndMQTTMerges(t *testing.T) {
	ctx := context.Background()
	web := NewDevice("web", DeviceTypeWebAPI)
	web.Tags["old"] = &Tag{ID: "old", Name: "old"}
	mqtt := NewDevice("mqtt", DeviceTypeMQTTClient)
	mqtt.Tags["old"] = &Tag{ID: "old", Name: "old"}
	reg, _ := newTestRegistry(t, web, mqtt)

	nodes := []DiscoveredNode{{ID: "new", Text: "New"}}
	for _, name := range []string{"web", "mqtt"} {
		if _, err := reg.ImportDiscovered(ctx, name, nodes); err != nil {
			t.Fatalf("ImportDiscovered(%s) error = %v", name, err)
		}
	}

	w, _ := reg.GetDevice(ctx, "web")
	if w.TagCount() != 1 || w.Tags["new"] == nil {
		t.Errorf("web tags = %v, want only new", w.Tags)
	}
	m, _ := reg.GetDevice(ctx, "mqtt")
	if m.TagCount() != 2 || m.Tags["old"] == nil || m.Tags["new"] == nil {
		t.Errorf("mqtt tags = %v, want old and new", m.Tags)
	}
}

func TestRegistry_EditTag(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t, testDevice("plc-1"))
	notifier := &recordingNotifier{}
	reg.SetNotifier(notifier)

	res, err := reg.EditTag(ctx, "plc-1", EditRequest{
		OriginalID: "flow",
		Draft:      TagDraft{Name: "flow-rate", Type: TagTypeUInt16, Address: "100", MemAddress: "5"},
	})
	if err != nil {
		t.Fatalf("EditTag() error = %v", err)
	}
	if res.Outcome != EditRenamed || res.Status != "renamed" || res.ID != "flow-rate" {
		t.Errorf("result = %+v", res)
	}

	d, _ := reg.GetDevice(ctx, "plc-1")
	if _, ok := d.Tags["flow"]; ok {
		t.Error("old key still cached")
	}
	stored, _ := repo.Get(ctx, "plc-1")
	if _, ok := stored.Tags["flow-rate"]; !ok {
		t.Error("rename not persisted")
	}
	if kinds := notifier.kinds(); len(kinds) != 1 || kinds[0] != ChangeTags {
		t.Errorf("events = %v, want [tags]", kinds)
	}
}

func TestRegistry_EditTagRejectedIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t, testDevice("plc-1"))

	res, err := reg.EditTag(ctx, "plc-1", EditRequest{
		OriginalID: "flow",
		Draft:      TagDraft{Name: "pressure", Address: "1"},
	})
	if err != nil {
		t.Fatalf("EditTag() error = %v", err)
	}
	if res.Outcome != EditRejected {
		t.Errorf("Outcome = %v, want rejected", res.Outcome)
	}
	if repo.setTagsCalls() != 0 {
		t.Errorf("rejected edit persisted")
	}
	d, _ := reg.GetDevice(ctx, "plc-1")
	if d.Tags["flow"] == nil || d.Tags["pressure"].Address != "200" {
		t.Errorf("device changed by rejected edit: %v", d.Tags)
	}
}

func TestRegistry_EditTagValidation(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("plc-1"))

	_, err := reg.EditTag(context.Background(), "plc-1", EditRequest{
		Draft: TagDraft{Name: "x", Address: "not-a-register"},
	})
	if !errors.Is(err, ErrInvalidTag) {
		t.Errorf("EditTag() error = %v, want %v", err, ErrInvalidTag)
	}
}

func TestRegistry_EditTagMQTTRoutesToImport(t *testing.T) {
	ctx := context.Background()
	dev := NewDevice("broker", DeviceTypeMQTTClient)
	dev.Tags["t1"] = &Tag{ID: "t1", Name: "t1", Address: "a/b"}
	reg, _ := newTestRegistry(t, dev)

	res, err := reg.EditTag(ctx, "broker", EditRequest{
		OriginalID: "t1",
		Nodes:      []DiscoveredNode{{ID: "t1"}, {ID: "t2", Property: "c/d"}},
	})
	if err != nil {
		t.Fatalf("EditTag() error = %v", err)
	}
	if res.Import == nil || res.Import.Added != 1 || res.Import.Skipped != 1 {
		t.Errorf("import = %+v", res.Import)
	}
	d, _ := reg.GetDevice(ctx, "broker")
	if d.TagCount() != 2 || d.Tags["t2"].Address != "c/d" {
		t.Errorf("tags = %v", d.Tags)
	}
}

func TestRegistry_PersistFailureLeavesCacheUnchanged(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t, testDevice("plc-1"))
	repo.setTagsErr = errors.New("database is locked")

	if _, err := reg.ClearTags(ctx, "plc-1"); err == nil {
		t.Fatal("ClearTags() error = nil, want persistence error")
	}
	d, _ := reg.GetDevice(ctx, "plc-1")
	if d.TagCount() != 2 {
		t.Errorf("TagCount() = %d, want 2 after failed clear", d.TagCount())
	}
}

func TestRegistry_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t, testDevice("plc-1"))

	removed, err := reg.RemoveTag(ctx, "plc-1", "flow")
	if err != nil || !removed {
		t.Fatalf("RemoveTag() = %v, %v", removed, err)
	}
	removed, err = reg.RemoveTag(ctx, "plc-1", "flow")
	if err != nil || removed {
		t.Errorf("second RemoveTag() = %v, %v; want false, nil", removed, err)
	}
	if repo.setTagsCalls() != 1 {
		t.Errorf("SetDeviceTags calls = %d, want 1", repo.setTagsCalls())
	}

	n, err := reg.ClearTags(ctx, "plc-1")
	if err != nil || n != 1 {
		t.Errorf("ClearTags() = %d, %v; want 1, nil", n, err)
	}

	_, err = reg.EditTag(ctx, "plc-1", EditRequest{Draft: TagDraft{Name: "only", Address: "1"}})
	if err != nil {
		t.Fatalf("EditTag() error = %v", err)
	}
	d, _ := reg.GetDevice(ctx, "plc-1")
	if d.TagCount() != 1 || d.Tags["only"] == nil {
		t.Errorf("tags after clear and add = %v", d.Tags)
	}
}

func TestRegistry_Overlay(t *testing.T) {
	ctx := context.Background()
	reg, repo := newTestRegistry(t, testDevice("plc-1"))

	updates := reg.Overlay(map[SignalKey]SignalValue{
		{Device: "plc-1", Tag: "flow"}:    {Value: 42},
		{Device: "plc-1", Tag: "missing"}: {Value: 1},
		{Device: "other", Tag: "flow"}:    {Value: 1},
	})
	if len(updates) != 1 || updates[0].Key.Tag != "flow" || updates[0].Value != 42 {
		t.Errorf("updates = %+v", updates)
	}
	if repo.setTagsCalls() != 0 {
		t.Error("overlay persisted values")
	}

	d, _ := reg.GetDevice(ctx, "plc-1")
	if d.Tags["flow"].Value != 42 || d.Tags["pressure"].Value != nil {
		t.Errorf("values = %v, %v", d.Tags["flow"].Value, d.Tags["pressure"].Value)
	}

	// Values survive a structural change of another tag.
	if _, err := reg.RemoveTag(ctx, "plc-1", "pressure"); err != nil {
		t.Fatalf("RemoveTag() error = %v", err)
	}
	d, _ = reg.GetDevice(ctx, "plc-1")
	if d.Tags["flow"].Value != 42 {
		t.Errorf("value lost after mutation: %v", d.Tags["flow"].Value)
	}
}

func TestRegistry_TagViews(t *testing.T) {
	reg, _ := newTestRegistry(t, testDevice("plc-1"))

	views, err := reg.TagViews(context.Background(), "plc-1")
	if err != nil {
		t.Fatalf("TagViews() error = %v", err)
	}
	if len(views) != 2 || views[0].ID != "flow" || views[1].ID != "pressure" {
		t.Fatalf("views = %+v", views)
	}
	if views[0].AddressDisplay != "104" || views[0].LabelDisplay != "flow" {
		t.Errorf("flow view = %+v", views[0])
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t, testDevice("plc-1"), NewDevice("server", DeviceTypeOPCUA))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("tag-%d", i)
			_, _ = reg.EditTag(ctx, "plc-1", EditRequest{Draft: TagDraft{Name: name, Address: "1"}})
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = reg.ImportDiscovered(ctx, "server", []DiscoveredNode{{ID: fmt.Sprintf("n%d", i)}})
		}(i)
		go func(i int) {
			defer wg.Done()
			reg.Overlay(map[SignalKey]SignalValue{
				{Device: "plc-1", Tag: "flow"}: {Value: i},
				{Device: "server", Tag: "n0"}:  {Value: i},
			})
			_ = reg.ListDevices(ctx)
		}(i)
	}
	wg.Wait()

	plc, _ := reg.GetDevice(ctx, "plc-1")
	if plc.TagCount() != 22 {
		t.Errorf("plc TagCount() = %d, want 22", plc.TagCount())
	}
	server, _ := reg.GetDevice(ctx, "server")
	if server.TagCount() != 20 {
		t.Errorf("server TagCount() = %d, want 20", server.TagCount())
	}
}
