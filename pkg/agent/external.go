package agent

import (
	"context"

	"github.com/oasis-forum/oasis/pkg/agent/prompt"
)

// participateExternal calls an external OpenAI-compatible chat endpoint.
// The engine does not pass history; the external side is assumed stateful
// on its own (spec §4.4 "External").
func participateExternal(ctx context.Context, h Handle, deps Dependencies, view ForumView, instruction string) (*Result, error) {
	messages := prompt.BuildMessages(view.Question, view.RecentPosts, instruction, h.Persona, view.DiscussionMode)

	text, err := deps.External.Complete(ctx, h.ExternalEndpoint, h.ExternalHeaders, h.ExternalModel, messages)
	if err != nil {
		return nil, err
	}

	reply := prompt.ParseReply(text, view.DiscussionMode)
	return &Result{
		Content: reply.Content,
		ReplyTo: reply.ReplyTo,
		Votes:   toVoteIntents(reply.Votes),
	}, nil
}
