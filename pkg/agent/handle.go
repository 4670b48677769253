// Package agent implements the agent resolver and the four agent variants
// described in spec §4.2 and §4.4. Dispatch is modeled as a closed sum
// type (Kind + Handle) rather than an interface, per the spec's own
// Design Note (§9): "prefer the sum type to keep dispatch explicit and
// exhaustive", implemented the way the teacher implements its other
// closed string enums (pkg/config/enums.go's IsValid() switches).
package agent

import "context"

// Kind discriminates the four agent variants (spec §3, §4.4).
type Kind string

const (
	KindDirect         Kind = "direct"
	KindOasisSession   Kind = "oasis_session"
	KindRegularSession Kind = "regular_session"
	KindExternal       Kind = "external"
)

// IsValid reports whether k is one of the four recognized kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindDirect, KindOasisSession, KindRegularSession, KindExternal:
		return true
	default:
		return false
	}
}

// Handle is the resolved form of a schedule name (spec §3).
type Handle struct {
	Kind        Kind
	DisplayName string
	Tag         string
	Persona     string
	SessionID   string // empty for direct and external

	// Temperature overrides the variant default when a preset supplied one
	// (spec §4.4 "Direct ... temperature taken from the preset (or a
	// default)"); zero means "use the variant default".
	Temperature float64

	// InstanceNumber is meaningful only for KindDirect; it exists purely
	// so multiple indistinguishable direct agents can coexist in a pool
	// as distinct handles (spec §4.4).
	InstanceNumber int

	// ExternalID is the trailing segment of an ext# name, used to look up
	// endpoint config from a collaborator store when the step carries no
	// inline override (spec §4.2).
	ExternalID string

	// External-only fields, filled in at pool-build time from the
	// collaborator default for ExternalID (spec §4.4 "External"). A
	// schedule step carries no inline endpoint config, so nothing
	// overrides these at dispatch time.
	ExternalEndpoint string
	ExternalHeaders  map[string]string
	ExternalModel    string
}

// Result is what a successful participate() call produces: at most one
// new post's content plus any votes/reply target the agent expressed
// (spec §4.4). The engine is responsible for actually calling
// forum.Publish/forum.ApplyVotes; this package only reads the forum.
type Result struct {
	Content string
	ReplyTo *int
	Votes   []VoteIntent
}

// VoteIntent mirrors forum.VoteIntent without importing pkg/forum into
// this package's public surface; pkg/engine converts between the two when
// it applies the result.
type VoteIntent struct {
	PostID int
	Up     bool
}

// Participate dispatches to the concrete variant implementation by Kind.
// It never panics on unhandled kinds outside this package's control: the
// resolver only ever constructs Handles with a valid Kind.
func (h Handle) Participate(ctx context.Context, deps Dependencies, view ForumView, instruction string) (*Result, error) {
	switch h.Kind {
	case KindDirect:
		return participateDirect(ctx, h, deps, view, instruction)
	case KindOasisSession:
		return participateOasisSession(ctx, h, deps, view, instruction)
	case KindRegularSession:
		return participateRegularSession(ctx, h, deps, view, instruction)
	case KindExternal:
		return participateExternal(ctx, h, deps, view, instruction)
	default:
		return nil, &ErrUnknownKind{Kind: h.Kind}
	}
}
