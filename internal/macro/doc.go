// Package macro provides the hierarchical macro engine for macropilot.
//
// A macro is a tree of nodes. Leaves are autopilot actions (rotate to a
// bearing, hold attitude, fly to a waypoint, set throttle, wait, check a
// condition). Composites own ordered children and decide which one is active
// according to a policy: sequence, choice, loop or conditional. The root of
// every tree is a Macro, which adds a display title and activation
// notifications.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                       │
//	│  One per vessel; ticks the loaded macro at a fixed rate   │
//	│  ┌──────────────┐    ┌────────────────┐                  │
//	│  │   Library    │───▶│   Repository   │                  │
//	│  │ (library.go) │    │ (repository.go)│                  │
//	│  └──────────────┘    └────────────────┘                  │
//	│        │ copy on retrieve                                 │
//	│        ▼                                                  │
//	│  ┌───────────────────────────────────────────────────┐   │
//	│  │  Tick Pipeline                                     │   │
//	│  │  1. Snapshot vessel telemetry                      │   │
//	│  │  2. Execute the root; one leaf runs per tick        │   │
//	│  │  3. Publish activations (MQTT + WebSocket)          │   │
//	│  │  4. Write tick metrics (InfluxDB)                   │   │
//	│  │  5. Record the run when the root terminates         │   │
//	│  └───────────────────────────────────────────────────┘   │
//	└──────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Node: anything that can sit in a macro tree
//   - Composite: a node with children and an activation policy
//   - Macro: the root node, with title and activation observers
//   - Record: the persisted form of a node subtree (YAML/JSON)
//   - Library: name-sorted store of macros with copy semantics
//   - Engine: drives one macro against one vessel
//
// # Thread Safety
//
// Trees are not safe for concurrent use; the Engine serialises all access
// to the tree it owns. Library and Engine are safe for concurrent use.
//
// # Usage
//
//	repo := macro.NewSQLiteRepository(db)
//	lib := macro.NewLibrary(repo)
//	lib.SetLogger(log)
//	if err := lib.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	eng := macro.NewEngine(cfg, macro.Deps{Vessel: v, Library: lib, Repo: repo})
//	if err := eng.Load(ctx, "Landing"); err != nil {
//	    return err
//	}
//	status, err := eng.Tick(ctx)
package macro
