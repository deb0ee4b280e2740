package vessel

import (
	"sort"
	"strings"
	"sync"

	"github.com/nerrad567/macro-autopilot/internal/geo"
)

// Registry tracks known vessels and resolves them as waypoint targets.
//
// Part references use the ID form "{vessel_id}/{part_id}".
type Registry struct {
	mu      sync.RWMutex
	vessels map[string]Vessel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{vessels: make(map[string]Vessel)}
}

// Add registers v, replacing any vessel with the same ID.
func (r *Registry) Add(v Vessel) {
	r.mu.Lock()
	r.vessels[v.ID()] = v
	r.mu.Unlock()
}

// Remove unregisters a vessel. It reports whether the vessel was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vessels[id]; !ok {
		return false
	}
	delete(r.vessels, id)
	return true
}

// Get returns the vessel with the given ID.
func (r *Registry) Get(id string) (Vessel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vessels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// IDs returns the registered vessel IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.vessels))
	for id := range r.vessels {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Resolve implements geo.EntityResolver.
func (r *Registry) Resolve(ref geo.TargetRef) (geo.Entity, bool) {
	switch ref.Kind {
	case geo.TargetVessel, geo.TargetGeneric:
		v, err := r.Get(ref.ID)
		if err != nil {
			return geo.Entity{}, false
		}
		t := v.Telemetry()
		return geo.Entity{Ref: ref, Name: t.Name, Position: t.Position}, true

	case geo.TargetPart:
		vesselID, partID, ok := strings.Cut(ref.ID, "/")
		if !ok {
			return geo.Entity{}, false
		}
		v, err := r.Get(vesselID)
		if err != nil {
			return geo.Entity{}, false
		}
		t := v.Telemetry()
		name, ok := t.Parts[partID]
		if !ok {
			return geo.Entity{}, false
		}
		owner := t.Position
		return geo.Entity{Ref: ref, Name: name, Position: t.Position, OwnerPosition: &owner}, true
	}
	return geo.Entity{}, false
}
