// Package signal feeds live tag values into the registry.
//
// A Source produces a snapshot of wire-keyed values ("<device>#<tag>").
// Three sources exist:
//
//   - MQTTSource caches values published on tagregistry/value/{device}/{tag}.
//   - ValkeySource reads a Valkey hash with HGETALL on every refresh.
//   - StaticSource holds values set in process.
//
// The Refresher polls a Source on a fixed interval, overlays the snapshot
// onto the registry, and forwards values that changed to an optional
// Recorder (value history) and Broadcaster (WebSocket clients).
package signal
