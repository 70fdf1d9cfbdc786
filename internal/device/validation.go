package device

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxNameLength   = 100
	maxTagIDLength  = 256
	maxTagFieldLen  = 1024
	maxImportNodes  = 10000
	registerPattern = `^[0-9]+$`
)

var registerRegex = regexp.MustCompile(registerPattern)

// Pre-computed validation sets for O(1) lookups.
var (
	validDeviceTypes map[DeviceType]struct{}
	validTagTypes    map[string]struct{}
)

func init() {
	validDeviceTypes = make(map[DeviceType]struct{}, len(AllDeviceTypes()))
	for _, t := range AllDeviceTypes() {
		validDeviceTypes[t] = struct{}{}
	}

	validTagTypes = make(map[string]struct{}, len(AllTagTypes()))
	for _, t := range AllTagTypes() {
		validTagTypes[t] = struct{}{}
	}
}

// ValidateDevice checks the identity fields of a device.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	return ValidateDeviceType(d.Type)
}

// ValidateName checks if a device name is valid. Names become the device
// part of signal keys and a single MQTT topic level, so the separator, "/"
// and the "+" wildcard are not allowed.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if trimmed != name {
		return fmt.Errorf("%w: name has leading or trailing whitespace", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if strings.ContainsAny(name, SignalKeySeparator+"/+") {
		return fmt.Errorf("%w: name must not contain %q, \"/\" or \"+\"", ErrInvalidName, SignalKeySeparator)
	}
	return nil
}

// ValidateDeviceType checks if a device type is valid.
// Uses O(1) map lookup for efficiency.
func ValidateDeviceType(deviceType DeviceType) error {
	if _, ok := validDeviceTypes[deviceType]; ok {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDeviceType, deviceType)
}

// ValidateTagType checks a hand-entered tag data type. An empty type is
// allowed and left for the runtime to infer.
func ValidateTagType(tagType string) error {
	if tagType == "" {
		return nil
	}
	if _, ok := validTagTypes[tagType]; ok {
		return nil
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidTag, tagType)
}

// ValidateTagDraft checks an edited tag before it reaches the reconciler.
// Register-addressed protocols require numeric address fields so that
// ResolveAddress can combine them.
func ValidateTagDraft(deviceType DeviceType, draft TagDraft) error {
	if strings.TrimSpace(draft.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTag)
	}
	if strings.Contains(draft.Name, SignalKeySeparator) {
		return fmt.Errorf("%w: name must not contain %q", ErrInvalidTag, SignalKeySeparator)
	}
	for field, v := range map[string]string{
		"name":       draft.Name,
		"address":    draft.Address,
		"memaddress": draft.MemAddress,
	} {
		if len(v) > maxTagFieldLen {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidTag, field, maxTagFieldLen)
		}
	}
	if err := ValidateTagType(draft.Type); err != nil {
		return err
	}
	if draft.Min != nil && draft.Max != nil && *draft.Min > *draft.Max {
		return fmt.Errorf("%w: min %g is greater than max %g", ErrInvalidTag, *draft.Min, *draft.Max)
	}

	switch deviceType {
	case DeviceTypeModbusTCP, DeviceTypeModbusRTU:
		if !registerRegex.MatchString(draft.Address) {
			return fmt.Errorf("%w: register address must be a non-negative integer", ErrInvalidTag)
		}
		if draft.MemAddress != "" && !registerRegex.MatchString(draft.MemAddress) {
			return fmt.Errorf("%w: register offset must be a non-negative integer", ErrInvalidTag)
		}
	case DeviceTypeSiemensS7:
		if strings.TrimSpace(draft.Address) == "" {
			return fmt.Errorf("%w: address is required", ErrInvalidTag)
		}
	case DeviceTypeOPCUA, DeviceTypeBACnet, DeviceTypeWebAPI, DeviceTypeMQTTClient:
		// Addresses come from discovery and are stored verbatim.
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, deviceType)
	}
	return nil
}

// ValidateImport checks the size of a discovery batch.
func ValidateImport(nodes []DiscoveredNode) error {
	if len(nodes) > maxImportNodes {
		return fmt.Errorf("%w: import exceeds %d nodes", ErrInvalidTag, maxImportNodes)
	}
	return nil
}
