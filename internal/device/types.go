package device

import (
	"maps"
	"slices"
	"time"
)

// Device is a configured field endpoint speaking one protocol and owning
// a collection of tags keyed by tag ID.
type Device struct {
	Name string     `json:"name"`
	Type DeviceType `json:"type"`

	// Tags maps tag ID to tag. The key always equals the tag's ID once the
	// device has passed through Normalise.
	Tags map[string]*Tag `json:"tags"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tag is a named, addressable data point of a device.
type Tag struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Label      string      `json:"label,omitempty"`
	Type       string      `json:"type,omitempty"`
	Address    string      `json:"address,omitempty"`
	MemAddress string      `json:"memaddress,omitempty"`
	Options    *TagOptions `json:"options,omitempty"`
	Min        *float64    `json:"min,omitempty"`
	Max        *float64    `json:"max,omitempty"`

	// Value is runtime-only. It is written by the live value overlay and is
	// never persisted as configuration.
	Value any `json:"value,omitempty"`
}

// TagOptions holds the secondary selectable value of a tag, used by WebAPI
// reference tags where one field of a composite response is chosen.
type TagOptions struct {
	ID     string `json:"id,omitempty"`
	Value  string `json:"value,omitempty"`
	SelVal string `json:"selval,omitempty"`
}

// TagDraft carries the user-editable fields of a tag.
type TagDraft struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Address    string   `json:"address"`
	MemAddress string   `json:"memaddress"`
	Min        *float64 `json:"min,omitempty"`
	Max        *float64 `json:"max,omitempty"`
}

// DeviceType is the communication protocol of a device. It is fixed when the
// device is created and drives all protocol-specific behaviour.
type DeviceType string //nolint:revive // device.DeviceType reads better than device.Type at call sites

// DeviceType constants. The string values match the persisted project format.
const (
	DeviceTypeModbusTCP  DeviceType = "ModbusTCP"
	DeviceTypeModbusRTU  DeviceType = "ModbusRTU"
	DeviceTypeSiemensS7  DeviceType = "SiemensS7"
	DeviceTypeOPCUA      DeviceType = "OPCUA"
	DeviceTypeBACnet     DeviceType = "BACnet"
	DeviceTypeWebAPI     DeviceType = "WebAPI"
	DeviceTypeMQTTClient DeviceType = "MQTTclient"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeModbusTCP, DeviceTypeModbusRTU, DeviceTypeSiemensS7,
		DeviceTypeOPCUA, DeviceTypeBACnet, DeviceTypeWebAPI,
		DeviceTypeMQTTClient,
	}
}

// Common tag data types. Discovery sources may supply other tokens, which
// are stored verbatim.
const (
	TagTypeBool    = "Bool"
	TagTypeByte    = "Byte"
	TagTypeInt16   = "Int16"
	TagTypeUInt16  = "UInt16"
	TagTypeInt32   = "Int32"
	TagTypeUInt32  = "UInt32"
	TagTypeInt64   = "Int64"
	TagTypeUInt64  = "UInt64"
	TagTypeFloat32 = "Float32"
	TagTypeFloat64 = "Float64"
	TagTypeString  = "String"
	TagTypeStruct  = "Struct"
)

// AllTagTypes returns the tag data types accepted for hand-edited tags.
func AllTagTypes() []string {
	return []string{
		TagTypeBool, TagTypeByte, TagTypeInt16, TagTypeUInt16,
		TagTypeInt32, TagTypeUInt32, TagTypeInt64, TagTypeUInt64,
		TagTypeFloat32, TagTypeFloat64, TagTypeString, TagTypeStruct,
	}
}

// IdentityFollowsName reports whether a tag's ID is derived from its name for
// the given device type. For browse-based protocols the ID is the node ID
// assigned by discovery and survives renames.
func IdentityFollowsName(t DeviceType) bool {
	switch t {
	case DeviceTypeModbusTCP, DeviceTypeModbusRTU, DeviceTypeSiemensS7:
		return true
	case DeviceTypeOPCUA, DeviceTypeBACnet, DeviceTypeWebAPI, DeviceTypeMQTTClient:
		return false
	default:
		return false
	}
}

// NewDevice returns an empty device of the given type.
func NewDevice(name string, t DeviceType) *Device {
	return &Device{
		Name: name,
		Type: t,
		Tags: make(map[string]*Tag),
	}
}

// Normalise assigns a canonical identity to every tag: a tag without an ID
// takes its name as ID, and every entry is re-keyed under its ID. When two
// entries resolve to the same ID the first one in key order wins.
func (d *Device) Normalise() {
	if d.Tags == nil {
		d.Tags = make(map[string]*Tag)
		return
	}

	keys := sortedKeys(d.Tags)
	normalised := make(map[string]*Tag, len(d.Tags))
	for _, k := range keys {
		t := d.Tags[k]
		if t == nil {
			continue
		}
		if t.ID == "" {
			t.ID = t.Name
		}
		if t.ID == "" {
			t.ID = k
		}
		if _, exists := normalised[t.ID]; exists {
			continue
		}
		normalised[t.ID] = t
	}
	d.Tags = normalised
}

// isNormalised reports whether every tag is keyed under its non-empty ID.
func (d *Device) isNormalised() bool {
	if d.Tags == nil {
		return false
	}
	for k, t := range d.Tags {
		if t == nil || t.ID == "" || t.ID != k {
			return false
		}
	}
	return true
}

// TagCount returns the number of tags on the device.
func (d *Device) TagCount() int {
	return len(d.Tags)
}

// DeepCopy creates an independent copy of the Device including every tag.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Tags = make(map[string]*Tag, len(d.Tags))
	for k, t := range d.Tags {
		cpy.Tags[k] = t.Clone()
	}
	return &cpy
}

// Clone returns a copy of the tag that shares no pointers with the original.
// Value is copied shallowly; overlay values are scalars.
func (t *Tag) Clone() *Tag {
	if t == nil {
		return nil
	}
	cpy := *t
	if t.Options != nil {
		opts := *t.Options
		cpy.Options = &opts
	}
	cpy.Min = cloneFloat(t.Min)
	cpy.Max = cloneFloat(t.Max)
	return &cpy
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// sortedKeys returns the tag map keys in ascending order.
func sortedKeys(m map[string]*Tag) []string {
	return slices.Sorted(maps.Keys(m))
}
