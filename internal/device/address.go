package device

import (
	"math"
	"strconv"
	"strings"
)

// compositeAddressSeparator joins a WebAPI base address and its selected value.
const compositeAddressSeparator = " / "

// ResolveAddress returns the effective address of a tag for the given device
// type. It never fails: when the raw fields cannot be combined the raw address
// is returned unchanged.
func ResolveAddress(t *Tag, deviceType DeviceType) string {
	if t == nil {
		return ""
	}

	switch deviceType {
	case DeviceTypeModbusTCP, DeviceTypeModbusRTU:
		return registerAddress(t.Address, t.MemAddress)
	case DeviceTypeWebAPI:
		if t.Options != nil && t.Options.SelVal != "" {
			return t.Address + compositeAddressSeparator + t.Options.SelVal
		}
		return t.Address
	case DeviceTypeSiemensS7, DeviceTypeOPCUA, DeviceTypeBACnet, DeviceTypeMQTTClient:
		return t.Address
	default:
		return t.Address
	}
}

// registerAddress adds a register offset to a base register number.
// An empty offset is zero. A sum that would overflow int yields the base.
func registerAddress(base, offset string) string {
	b, err := strconv.Atoi(strings.TrimSpace(base))
	if err != nil {
		return base
	}
	o := 0
	if s := strings.TrimSpace(offset); s != "" {
		o, err = strconv.Atoi(s)
		if err != nil {
			return base
		}
	}
	if (o > 0 && b > math.MaxInt-o) || (o < 0 && b < math.MinInt-o) {
		return base
	}
	return strconv.Itoa(b + o)
}

// DisplayLabel returns the text shown for a tag in listings. Protocols whose
// discovery supplies a separate description show the label, falling back to
// the name; all others show the name.
func DisplayLabel(t *Tag, deviceType DeviceType) string {
	if t == nil {
		return ""
	}

	switch deviceType {
	case DeviceTypeBACnet, DeviceTypeWebAPI:
		if t.Label != "" {
			return t.Label
		}
		return t.Name
	case DeviceTypeModbusTCP, DeviceTypeModbusRTU, DeviceTypeSiemensS7,
		DeviceTypeOPCUA, DeviceTypeMQTTClient:
		return t.Name
	default:
		return t.Name
	}
}
