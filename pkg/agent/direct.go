package agent

import (
	"context"

	"github.com/oasis-forum/oasis/pkg/agent/prompt"
)

// defaultTemperature is used when no preset supplied one (spec §4.4
// "Direct ... temperature taken from the preset (or a default)").
const defaultTemperature = 0.7

const defaultMaxTokens = 1024

// participateDirect implements the stateless direct-LLM variant: build the
// full prompt from scratch every call, issue one completion, return. No
// state survives between calls (spec §4.4 "Direct").
func participateDirect(ctx context.Context, h Handle, deps Dependencies, view ForumView, instruction string) (*Result, error) {
	messages := prompt.BuildMessages(view.Question, view.RecentPosts, instruction, h.Persona, view.DiscussionMode)

	temperature := defaultTemperature
	if h.Temperature != 0 {
		temperature = h.Temperature
	}

	text, err := deps.LLM.Complete(ctx, messages, temperature, defaultMaxTokens)
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

func toVoteIntents(votes []prompt.Vote) []VoteIntent {
	if len(votes) == 0 {
		return nil
	}
	out := make([]VoteIntent, len(votes))
	for i, v := range votes {
		out[i] = VoteIntent{PostID: v.PostID, Up: v.Up}
	}
	return out
}
