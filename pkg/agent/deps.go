package agent

import (
	"context"
	"time"

	"github.com/oasis-forum/oasis/pkg/botsession"
	"github.com/oasis-forum/oasis/pkg/forum"
	"github.com/oasis-forum/oasis/pkg/llm"
)

// ExternalClient is the subset of pkg/external.Client the external variant
// needs, narrowed to an interface so tests can stub it without a real HTTP
// round trip.
type ExternalClient interface {
	Complete(ctx context.Context, endpoint string, headers map[string]string, model string, messages []llm.Message) (string, error)
}

// Dependencies bundles every collaborator a variant's Participate may call
// (spec §6 "Collaborator surfaces consumed by the engine"). The engine
// constructs one Dependencies value per topic and passes it to every
// Handle.Participate call.
type Dependencies struct {
	LLM        llm.Client
	BotSession botsession.Client
	External   ExternalClient

	// AgentTimeout bounds a single participate call (spec §5 "Timeouts");
	// the engine derives a per-call context from it before invoking
	// Participate, so variants do not need to apply it themselves.
	AgentTimeout time.Duration
}

// ForumView is the read-only slice of forum state a variant's prompt
// construction may read (spec §4.4 "the variant reads the current forum
// (recent posts, vote totals, topic question)"). It carries no mutation
// methods: posts are appended only by the engine, never by a variant.
type ForumView struct {
	Question       string
	Owner          string
	DiscussionMode bool
	RecentPosts    []forum.Post
}
