package agent

import (
	"context"

	"github.com/oasis-forum/oasis/pkg/agent/prompt"
)

// participateOasisSession delegates to the bot-session collaborator,
// injecting persona as the first-round system prompt; the collaborator
// owns conversation history across rounds (spec §4.4 "Oasis session").
func participateOasisSession(ctx context.Context, h Handle, deps Dependencies, view ForumView, instruction string) (*Result, error) {
	message := prompt.ModeInstruction(view.DiscussionMode) + "\n\n" + prompt.BuildUserContent(view.Question, view.RecentPosts, instruction)

	text, err := deps.BotSession.Ask(ctx, view.Owner, h.SessionID, message, h.Persona)
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
