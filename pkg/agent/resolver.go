package agent

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Resolver turns raw schedule name strings into agent handles, consulting
// an expert-preset store for tag lookups (spec §4.2) and, for ext# names,
// an external-endpoint store for the collaborator-default endpoint.
type Resolver struct {
	Presets   PresetStore
	Externals ExternalConfigStore
}

// NewResolver constructs a Resolver backed by presets. A nil presets
// disables lookup: every tag resolves to itself with empty persona. Use
// NewResolverWithExternals to additionally resolve ext# endpoint config.
func NewResolver(presets PresetStore) *Resolver {
	return &Resolver{Presets: presets}
}

// NewResolverWithExternals constructs a Resolver backed by both presets
// and an external-endpoint store.
func NewResolverWithExternals(presets PresetStore, externals ExternalConfigStore) *Resolver {
	return &Resolver{Presets: presets, Externals: externals}
}

// Pool is the resolved, ordered, de-duplicated set of agent handles plus
// an alias lookup map built from every name a later step might use to
// reference the same agent (spec §4.2 "Pool").
type Pool struct {
	Handles []Handle
	aliases map[string]Handle
}

// Lookup resolves name via the alias map (priority: full name > display
// name > tag > session id, spec §4.5 "Expert").
func (p *Pool) Lookup(name string) (Handle, bool) {
	h, ok := p.aliases[name]
	return h, ok
}

// BuildPool resolves every name in names (the schedule's referenced
// agent-name set, in order) into a Pool. Names with no "#" are dropped
// with a warning (spec §4.2).
func (r *Resolver) BuildPool(owner string, names []string) *Pool {
	handles := make([]Handle, 0, len(names))
	raw := make([]string, 0, len(names))

	for _, n := range names {
		h, ok := r.parseOne(owner, n)
		if !ok {
			slog.Warn("agent: dropping unresolvable schedule name", "name", n)
			continue
		}
		handles = append(handles, h)
		raw = append(raw, n)
	}

	pool := &Pool{Handles: handles, aliases: make(map[string]Handle)}
	registerAliasPass(pool, func(i int) string { return raw[i] })
	registerAliasPass(pool, func(i int) string { return pool.Handles[i].DisplayName })
	registerAliasPass(pool, func(i int) string { return pool.Handles[i].Tag })
	registerAliasPass(pool, func(i int) string { return pool.Handles[i].SessionID })
	return pool
}

// registerAliasPass inserts one alias category for every handle,
// first-come-wins, so earlier passes (higher-priority categories) are
// never overwritten by a later pass.
func registerAliasPass(p *Pool, keyFor func(i int) string) {
	for i, h := range p.Handles {
		k := keyFor(i)
		if k == "" {
			continue
		}
		if _, exists := p.aliases[k]; !exists {
			p.aliases[k] = h
		}
	}
}

// parseOne implements the name grammar of spec §4.2.
func (r *Resolver) parseOne(owner, rawName string) (Handle, bool) {
	name := rawName
	forceNew := false
	if strings.HasSuffix(name, "#new") {
		name = strings.TrimSuffix(name, "#new")
		forceNew = true
	}

	idx := strings.IndexByte(name, '#')
	if idx < 0 {
		return Handle{}, false
	}
	head := name[:idx]
	rest := name[idx+1:]

	switch {
	case strings.HasPrefix(rest, "temp#"):
		instance := 1
		if n, err := strconv.Atoi(strings.TrimPrefix(rest, "temp#")); err == nil {
			instance = n
		}
		h := Handle{Kind: KindDirect, Tag: head, InstanceNumber: instance}
		r.applyPreset(&h, owner)
		return h, true

	case strings.HasPrefix(rest, "oasis#") || strings.Contains(rest, "#oasis#"):
		sessionID := rest
		if forceNew {
			// The original reconstructs the whole id as a flat
			// "oasis#<token>", discarding any prefix segment before a
			// nested "#oasis#" marker rather than preserving it.
			sessionID = "oasis#" + newShortToken()
		}
		h := Handle{Kind: KindOasisSession, Tag: head, SessionID: sessionID}
		r.applyPreset(&h, owner)
		return h, true

	case strings.HasPrefix(rest, "ext#"):
		externalID := strings.TrimPrefix(rest, "ext#")
		if forceNew {
			externalID = newShortToken()
		}
		h := Handle{Kind: KindExternal, Tag: head, ExternalID: externalID}
		r.applyPreset(&h, owner)
		r.applyExternalConfig(&h)
		return h, true

	default:
		sessionID := rest
		if forceNew {
			sessionID = newShortToken()
		}
		h := Handle{Kind: KindRegularSession, DisplayName: head, SessionID: sessionID}
		return h, true
	}
}

// applyPreset looks h.Tag up in the preset store and adopts its display
// name/persona/temperature, falling back to the raw tag as display name
// with an empty persona when absent (spec §4.2 step 5).
func (r *Resolver) applyPreset(h *Handle, owner string) {
	if r.Presets != nil {
		if preset, ok := r.Presets.LookupByTag(h.Tag, owner); ok {
			h.DisplayName = preset.DisplayName
			h.Persona = preset.Persona
			h.Temperature = preset.Temperature
			return
		}
	}
	h.DisplayName = h.Tag
}

// applyExternalConfig looks h.ExternalID up in the external-endpoint
// store and adopts its endpoint/headers/model. This is the only source of
// endpoint config: schedule steps carry no inline override and pkg/engine
// does not change these fields. Absence is left unresolved: the variant
// then has no endpoint to call and participateExternal surfaces that as
// an AgentFailure rather than the resolver silently dropping the handle.
func (r *Resolver) applyExternalConfig(h *Handle) {
	if r.Externals == nil {
		return
	}
	if cfg, ok := r.Externals.LookupByID(h.ExternalID); ok {
		h.ExternalEndpoint = cfg.Endpoint
		h.ExternalHeaders = cfg.Headers
		h.ExternalModel = cfg.Model
	}
}

// newShortToken generates the short random replacement token #new uses
// (spec §4.2 step 4, §9 "Time and identifiers").
func newShortToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
