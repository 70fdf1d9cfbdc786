package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement and field names for tag value history.
const (
	measurementTagValues = "tag_values"

	fieldNumeric = "value"
	fieldBool    = "state"
	fieldText    = "text"
)

// WriteTagValue records one live value of a device tag. Numeric values are
// stored as float64 in "value", booleans in "state" and everything else as
// text. Nil values are dropped.
//
//	client.WriteTagValue("plc-1", "T1", 21.5, time.Now())
func (c *Client) WriteTagValue(deviceName, tagID string, value any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	point, ok := tagValuePoint(deviceName, tagID, value, ts)
	if !ok {
		return
	}
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func tagValuePoint(deviceName, tagID string, value any, ts time.Time) (*write.Point, bool) {
	key, field, ok := valueField(value)
	if !ok {
		return nil, false
	}
	return write.NewPoint(
		measurementTagValues,
		map[string]string{
			"device": deviceName,
			"tag":    tagID,
		},
		map[string]interface{}{key: field},
		ts,
	), true
}

// valueField picks the field name and representation for a runtime value.
func valueField(value any) (string, any, bool) {
	switch v := value.(type) {
	case nil:
		return "", nil, false
	case bool:
		return fieldBool, v, true
	case float64:
		return fieldNumeric, v, true
	case float32:
		return fieldNumeric, float64(v), true
	case int:
		return fieldNumeric, float64(v), true
	case int8:
		return fieldNumeric, float64(v), true
	case int16:
		return fieldNumeric, float64(v), true
	case int32:
		return fieldNumeric, float64(v), true
	case int64:
		return fieldNumeric, float64(v), true
	case uint:
		return fieldNumeric, float64(v), true
	case uint8:
		return fieldNumeric, float64(v), true
	case uint16:
		return fieldNumeric, float64(v), true
	case uint32:
		return fieldNumeric, float64(v), true
	case uint64:
		return fieldNumeric, float64(v), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return fieldNumeric, f, true
		}
		return fieldText, v.String(), true
	case string:
		return fieldText, v, true
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", nil, false
		}
		return fieldText, string(data), true
	}
}
