package agent

import "sync"

// Preset is what the expert-preset collaborator returns for a tag
// (spec §6: lookup_by_tag(tag, owner) -> {display_name, persona,
// temperature} | absent).
type Preset struct {
	DisplayName string
	Persona     string
	Temperature float64
}

// PresetStore is the expert-preset collaborator surface (spec §1 "expert
// preset CRUD" is out of scope; only lookup is consumed by the core).
type PresetStore interface {
	LookupByTag(tag, owner string) (Preset, bool)
}

// MemoryPresetStore is a minimal in-memory PresetStore, grounded on the
// teacher's RWMutex-guarded map-with-Get registry idiom
// (pkg/config/sub_agent_registry.go), used in tests and as a default for
// deployments with no external preset CRUD service.
type MemoryPresetStore struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

// NewMemoryPresetStore builds a store from an initial tag->preset map,
// defensively copied so later mutation of the input does not alias the
// store's state.
func NewMemoryPresetStore(initial map[string]Preset) *MemoryPresetStore {
	presets := make(map[string]Preset, len(initial))
	for k, v := range initial {
		presets[k] = v
	}
	return &MemoryPresetStore{presets: presets}
}

// LookupByTag implements PresetStore. owner is accepted for interface
// symmetry with a real multi-tenant preset service; MemoryPresetStore
// does not scope presets per owner.
func (s *MemoryPresetStore) LookupByTag(tag, _ string) (Preset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[tag]
	return p, ok
}

// Put registers or replaces a preset, for test setup.
func (s *MemoryPresetStore) Put(tag string, p Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[tag] = p
}

// ExternalEndpoint is what the external-endpoint collaborator returns for
// an ext# id: the fixed endpoint/headers/model triple a schedule's
// ext#ID name resolves to (spec §4.2, §4.4 "External"). The resolver
// applies it at pool-build time; schedules have no inline endpoint
// config that could override it.
type ExternalEndpoint struct {
	Endpoint string
	Headers  map[string]string
	Model    string
}

// ExternalConfigStore is the external-endpoint collaborator surface.
type ExternalConfigStore interface {
	LookupByID(id string) (ExternalEndpoint, bool)
}

// MemoryExternalConfigStore is a minimal in-memory ExternalConfigStore,
// the same shape as MemoryPresetStore, used in tests and as a default
// for deployments with a small fixed set of external endpoints.
type MemoryExternalConfigStore struct {
	mu      sync.RWMutex
	configs map[string]ExternalEndpoint
}

// NewMemoryExternalConfigStore builds a store from an initial id->config
// map, defensively copied.
func NewMemoryExternalConfigStore(initial map[string]ExternalEndpoint) *MemoryExternalConfigStore {
	configs := make(map[string]ExternalEndpoint, len(initial))
	for k, v := range initial {
		configs[k] = v
	}
	return &MemoryExternalConfigStore{configs: configs}
}

// LookupByID implements ExternalConfigStore.
func (s *MemoryExternalConfigStore) LookupByID(id string) (ExternalEndpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	return c, ok
}

// Put registers or replaces an external endpoint config, for test setup.
func (s *MemoryExternalConfigStore) Put(id string, c ExternalEndpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[id] = c
}
