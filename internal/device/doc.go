// Package device provides the device tag registry.
//
// Every configured field device (Modbus TCP/RTU, Siemens S7, OPC UA, BACnet,
// Web API or MQTT client) owns a collection of tags keyed by tag ID. The
// package merges discovered and hand-edited tags into those collections,
// resolves protocol-specific addresses, renames tags without leaving stale
// entries behind and overlays live values read from a signal feed.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────────┐
//	│                            Registry (registry.go)                      │
//	│   per-device locks · deep-copy cache · persist-then-swap · notifier    │
//	└──────┬───────────────┬────────────────┬────────────────┬──────────────┘
//	       │               │                │                │
//	       ▼               ▼                ▼                ▼
//	┌─────────────┐ ┌─────────────┐ ┌──────────────┐ ┌──────────────┐
//	│ Reconciler  │ │  Discovery  │ │   Overlay    │ │  Repository  │
//	│reconcile.go │ │discovery.go │ │  overlay.go  │ │repository.go │
//	└──────┬──────┘ └─────────────┘ └──────────────┘ └──────────────┘
//	       │
//	       ▼
//	┌─────────────┐
//	│  Resolver   │
//	│ address.go  │
//	└─────────────┘
//
// # Identity
//
// A tag's ID is its only identity. Records without an ID take their name as
// ID when loaded (see Device.Normalise). For Modbus and S7 devices the ID is
// recomputed from the name on every edit; for browse-based protocols it is the
// node ID assigned by discovery.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	res, err := registry.ImportDiscovered(ctx, "plc-1", nodes)
//
//	updates := registry.Overlay(device.ParseSignals(snapshot))
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Mutations of one device are
// serialised and exclude overlays of that device; different devices are
// independent. The package-level functions (Reconcile, ApplyEdit,
// ImportDiscovered, Overlay, RemoveTag, ClearAll) are not synchronised and
// expect the caller to hold exclusive access to the device.
package device
