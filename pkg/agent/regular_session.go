package agent

import (
	"context"

	"github.com/oasis-forum/oasis/pkg/agent/prompt"
)

// participateRegularSession uses the same transport as oasis_session but
// never injects a persona: the session's own configuration governs the
// agent's identity (spec §4.4 "Regular session").
func participateRegularSession(ctx context.Context, h Handle, deps Dependencies, view ForumView, instruction string) (*Result, error) {
	message := prompt.ModeInstruction(view.DiscussionMode) + "\n\n" + prompt.BuildUserContent(view.Question, view.RecentPosts, instruction)

	text, err := deps.BotSession.Ask(ctx, view.Owner, h.SessionID, message, "")
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
