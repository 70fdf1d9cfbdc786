package device

import "strings"

// SignalKeySeparator joins the device and tag parts of a signal key on the
// wire. Device names and tag IDs may not contain it.
const SignalKeySeparator = "#"

// SignalKey identifies one live signal by device and tag.
type SignalKey struct {
	Device string
	Tag    string
}

// String returns the wire form "<device>#<tag>".
func (k SignalKey) String() string {
	return k.Device + SignalKeySeparator + k.Tag
}

// ParseSignalKey splits a wire key at the first separator. It reports false
// when the key has no separator or either part is empty.
func ParseSignalKey(s string) (SignalKey, bool) {
	dev, tag, ok := strings.Cut(s, SignalKeySeparator)
	if !ok || dev == "" || tag == "" {
		return SignalKey{}, false
	}
	return SignalKey{Device: dev, Tag: tag}, true
}

// SignalValue is the current value of a live signal.
type SignalValue struct {
	Value any `json:"value"`
}

// ParseSignals converts a wire-keyed signal snapshot into typed keys,
// dropping keys that do not parse.
func ParseSignals(raw map[string]SignalValue) map[SignalKey]SignalValue {
	out := make(map[SignalKey]SignalValue, len(raw))
	for k, v := range raw {
		key, ok := ParseSignalKey(k)
		if !ok {
			continue
		}
		out[key] = v
	}
	return out
}

// Overlay writes signal values onto matching tags. Signals for unknown
// devices or tags are ignored. Only the Value field is touched. It returns
// the number of tags updated.
func Overlay(signals map[SignalKey]SignalValue, devices map[string]*Device) int {
	updated := 0
	for key, sig := range signals {
		d, ok := devices[key.Device]
		if !ok {
			continue
		}
		overlayDevice(d, map[SignalKey]SignalValue{key: sig}, func(SignalKey, any) {
			updated++
		})
	}
	return updated
}

// overlayDevice writes the signals addressed to tags of d and calls fn for
// every tag written. Keys are matched on the tag part only.
func overlayDevice(d *Device, signals map[SignalKey]SignalValue, fn func(SignalKey, any)) {
	if d == nil {
		return
	}
	for key, sig := range signals {
		t, ok := d.Tags[key.Tag]
		if !ok || t == nil {
			continue
		}
		t.Value = sig.Value
		fn(key, sig.Value)
	}
}
