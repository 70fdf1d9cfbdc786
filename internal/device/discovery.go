package device

import "fmt"

// NodeClass distinguishes the kinds of node a discovery browse returns.
type NodeClass string

// Node classes.
const (
	NodeClassVariable  NodeClass = "Variable"
	NodeClassReference NodeClass = "Reference"
	NodeClassObject    NodeClass = "Object"
)

// DiscoveredNode is one entry returned by browsing a protocol endpoint.
type DiscoveredNode struct {
	ID    string    `json:"id"`
	Text  string    `json:"text"`
	Type  string    `json:"type"`
	Class NodeClass `json:"class"`

	// Property is the path of the value inside a reference node's response.
	Property string `json:"property,omitempty"`

	// ToDefine is the selectable value descriptor of a reference node.
	ToDefine *TagOptions `json:"todefine,omitempty"`
}

// ImportResult summarises a discovery import.
type ImportResult struct {
	Added   int  `json:"added"`
	Skipped int  `json:"skipped"`
	Invalid int  `json:"invalid"`
	Cleared bool `json:"cleared"`
}

// ImportDiscovered merges discovered nodes into d according to the device's
// protocol. WebAPI devices are replaced wholesale; the other browse-based
// protocols merge incrementally. Nodes without a usable identity are counted
// as invalid and skipped.
func ImportDiscovered(nodes []DiscoveredNode, d *Device) (ImportResult, error) {
	var res ImportResult
	if d == nil {
		return res, ErrInvalidDevice
	}

	var toTag func(DiscoveredNode) Tag
	switch d.Type {
	case DeviceTypeOPCUA:
		toTag = browseNodeTag
	case DeviceTypeBACnet:
		toTag = labelledNodeTag
	case DeviceTypeWebAPI:
		toTag = webAPINodeTag
		ClearAll(d)
		res.Cleared = true
	case DeviceTypeMQTTClient:
		toTag = topicNodeTag
	case DeviceTypeModbusTCP, DeviceTypeModbusRTU, DeviceTypeSiemensS7:
		return res, fmt.Errorf("%w: %s", ErrImportNotSupported, d.Type)
	default:
		return res, fmt.Errorf("%w: %q", ErrInvalidDeviceType, d.Type)
	}

	for _, n := range nodes {
		c, err := NewCandidate(toTag(n))
		if err != nil {
			res.Invalid++
			continue
		}
		if Reconcile(c, d) {
			res.Added++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

func browseNodeTag(n DiscoveredNode) Tag {
	return Tag{
		ID:      n.ID,
		Name:    n.ID,
		Type:    n.Type,
		Address: n.ID,
	}
}

func labelledNodeTag(n DiscoveredNode) Tag {
	t := browseNodeTag(n)
	t.Label = n.Text
	return t
}

func webAPINodeTag(n DiscoveredNode) Tag {
	t := labelledNodeTag(n)
	if n.Class == NodeClassReference {
		t.MemAddress = n.Property
		if n.ToDefine != nil {
			opts := *n.ToDefine
			t.Options = &opts
		}
	}
	return t
}

// topicNodeTag maps a subscribed MQTT topic to a tag. The topic itself is the
// address when no separate property is given.
func topicNodeTag(n DiscoveredNode) Tag {
	t := Tag{
		ID:      n.ID,
		Name:    n.Text,
		Type:    n.Type,
		Address: n.Property,
	}
	if t.Name == "" {
		t.Name = n.ID
	}
	if t.Address == "" {
		t.Address = n.ID
	}
	return t
}
