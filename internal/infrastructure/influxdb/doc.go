// Package influxdb records tag value history in InfluxDB v2.
//
// Every overlay refresh that changes a tag value may be written as a point
// in the tag_values measurement, tagged by device and tag ID. Writes go
// through the client's batched non-blocking API; configure batch_size and
// flush_interval in the influxdb config section.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history off
//	}
//	defer client.Close()
//
//	client.WriteTagValue("plc-1", "T1", 21.5, time.Now())
package influxdb
