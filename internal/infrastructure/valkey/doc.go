// Package valkey reads live tag values from a Valkey (or Redis) hash.
//
// A runtime keeps one hash, by default tagregistry:signals, whose fields
// are signal keys of the form "<device>#<tag>" and whose values are JSON
// payloads {"value": ...}. The signal package polls it with HGETALL and
// overlays the result onto the registry.
package valkey
