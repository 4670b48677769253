// Package engine drives a single topic's round loop: schedule walking,
// step dispatch, fan-out, cancellation, early-stop, and summarization
// (spec §4.5). One Engine is created per topic by pkg/registry and run as
// a detached task, grounded on the goroutine-per-unit-of-work +
// sync.WaitGroup + swallowed-per-agent-error pattern of
// tarsy/pkg/agent/orchestrator/runner.go, simplified: OASIS has no
// sub-agent tree to track, only a flat fan-out per step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/oasis-forum/oasis/pkg/agent"
	"github.com/oasis-forum/oasis/pkg/forum"
	"github.com/oasis-forum/oasis/pkg/schedule"
	"github.com/oasis-forum/oasis/pkg/summarizer"
)

// recentPostWindow is K in "the last K posts" (spec §4.4).
const recentPostWindow = 10

// topSummaryCount is the number of top posts fed to summarization
// (spec §4.5 "Fetch the top 5 posts").
const topSummaryCount = 5

var errCancelled = errors.New("engine: cancelled")

// Engine is the per-topic orchestrator (spec §4.5 "Per-topic state").
type Engine struct {
	schedule       *schedule.Schedule
	pool           *agent.Pool
	forum          *forum.Store
	deps           agent.Dependencies
	summarizer     summarizer.Summarizer
	earlyStop      bool
	summaryTimeout time.Duration

	onTerminal func(forum.Topic)
}

// New constructs an Engine for one topic. summaryTimeout bounds the final
// summarization call (spec §5 "Summarization has its own bound"); zero
// disables the bound, leaving the round-loop context in effect.
func New(sched *schedule.Schedule, pool *agent.Pool, store *forum.Store, deps agent.Dependencies, summ summarizer.Summarizer, earlyStop bool, summaryTimeout time.Duration) *Engine {
	return &Engine{
		schedule:       sched,
		pool:           pool,
		forum:          store,
		deps:           deps,
		summarizer:     summ,
		earlyStop:      earlyStop,
		summaryTimeout: summaryTimeout,
	}
}

// OnTerminal registers a hook invoked exactly once when the topic reaches
// a terminal status, with the final Topic snapshot (spec §6 "Completion
// callback"). pkg/registry uses this to deliver the callback POST; Engine
// itself knows nothing about HTTP.
func (e *Engine) OnTerminal(fn func(forum.Topic)) {
	e.onTerminal = fn
}

// Run executes the main loop (spec §4.5 "Main loop") until the topic
// reaches a terminal status. ctx carries cooperative cancellation
// (spec §5): it is checked before each round, each step, and each agent
// dispatch, never abandoned mid-call.
func (e *Engine) Run(ctx context.Context) {
	e.forum.SetStatus(forum.StatusDiscussing)
	e.forum.AppendTimeline(forum.EventStart, "", "")

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("engine: panic: %v", r)
			}
		}()
		if e.schedule.Repeat {
			runErr = e.runRepeat(ctx)
		} else {
			runErr = e.runStepwise(ctx)
		}
	}()

	switch {
	case errors.Is(runErr, errCancelled):
		e.terminate(forum.StatusCancelled, forum.EventCancel, "cancelled: discussion stopped before completion")
	case runErr != nil:
		e.terminate(forum.StatusError, forum.EventError, runErr.Error())
	default:
		e.finish(ctx)
	}
}

func (e *Engine) checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return errCancelled
	}
	return nil
}

func (e *Engine) runRepeat(ctx context.Context) error {
	maxRounds := e.forum.Topic().MaxRounds
	for round := 1; round <= maxRounds; round++ {
		if err := e.checkCancelled(ctx); err != nil {
			return err
		}
		e.forum.SetCurrentRound(round)
		e.forum.AppendTimeline(forum.EventRound, "", fmt.Sprintf("round %d", round))

		for _, step := range e.schedule.Steps {
			if err := e.checkCancelled(ctx); err != nil {
				return err
			}
			if err := e.executeStep(ctx, step); err != nil {
				return err
			}
		}

		if e.earlyStop && round >= 2 && e.consensusReached() {
			slog.Info("engine: early stop, consensus reached", "round", round)
			break
		}
	}
	return nil
}

func (e *Engine) runStepwise(ctx context.Context) error {
	e.forum.SetMaxRounds(len(e.schedule.Steps))

	for i, step := range e.schedule.Steps {
		if err := e.checkCancelled(ctx); err != nil {
			return err
		}
		e.forum.SetCurrentRound(i + 1)
		e.forum.AppendTimeline(forum.EventRound, "", fmt.Sprintf("step %d", i+1))

		if err := e.executeStep(ctx, step); err != nil {
			return err
		}

		if e.earlyStop && i >= 1 && e.consensusReached() {
			slog.Info("engine: early stop, consensus reached", "step", i+1)
			break
		}
	}
	return nil
}

// executeStep dispatches one step by kind (spec §4.5 "Step execution").
func (e *Engine) executeStep(ctx context.Context, step schedule.Step) error {
	switch step.Kind {
	case schedule.StepManual:
		return e.executeManual(step)
	case schedule.StepExpert:
		return e.executeExpert(ctx, step)
	case schedule.StepParallel:
		return e.executeParallel(ctx, step)
	case schedule.StepAll:
		return e.executeAll(ctx, step)
	default:
		return nil
	}
}

// executeManual publishes directly with no agent call. An invalid
// reply_to here is a schedule defect, not an agent hallucination, so it
// propagates as a fatal engine error rather than being swallowed (spec §8
// scenario 4).
func (e *Engine) executeManual(step schedule.Step) error {
	var replyTo *int
	if step.HasReply {
		replyTo = step.ReplyTo
	}
	if _, err := e.forum.Publish(step.Author, step.Content, replyTo); err != nil {
		return fmt.Errorf("manual step: %w", err)
	}
	return nil
}

func (e *Engine) executeExpert(ctx context.Context, step schedule.Step) error {
	h, ok := e.pool.Lookup(step.Name)
	if !ok {
		slog.Warn("engine: skipping unresolved expert step", "name", step.Name)
		return nil
	}
	e.dispatchOne(ctx, h, step.Instruction)
	return nil
}

func (e *Engine) executeParallel(ctx context.Context, step schedule.Step) error {
	handles := make([]agent.Handle, 0, len(step.Members))
	instructions := make([]string, 0, len(step.Members))
	for _, m := range step.Members {
		h, ok := e.pool.Lookup(m.Name)
		if !ok {
			slog.Warn("engine: skipping unresolved parallel member", "name", m.Name)
			continue
		}
		handles = append(handles, h)
		instructions = append(instructions, m.Instruction)
	}
	e.dispatchConcurrent(ctx, handles, instructions)
	return nil
}

func (e *Engine) executeAll(ctx context.Context, step schedule.Step) error {
	instructions := make([]string, len(e.pool.Handles))
	for i := range instructions {
		instructions[i] = step.Instruction
	}
	e.dispatchConcurrent(ctx, e.pool.Handles, instructions)
	return nil
}

// dispatchConcurrent runs every handle's participate call in its own
// goroutine and waits for all to finish; per-agent errors are swallowed
// inside dispatchOne (spec §4.4, §5 "the step completes when the last
// returns").
func (e *Engine) dispatchConcurrent(ctx context.Context, handles []agent.Handle, instructions []string) {
	var wg sync.WaitGroup
	for i, h := range handles {
		wg.Add(1)
		go func(h agent.Handle, instruction string) {
			defer wg.Done()
			e.dispatchOne(ctx, h, instruction)
		}(h, instructions[i])
	}
	wg.Wait()
}

// dispatchOne calls one agent, publishes its post, and applies its votes.
// A failure at any stage (the call itself, or a hallucinated reply_to
// the forum rejects) is recorded as an error timeline event; it never
// fails the step or the topic (spec §4.4, §7 "AgentFailure").
func (e *Engine) dispatchOne(ctx context.Context, h agent.Handle, instruction string) {
	if ctx.Err() != nil {
		return
	}
	e.forum.AppendTimeline(forum.EventAgentCall, h.DisplayName, "")

	callCtx := ctx
	if e.deps.AgentTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.deps.AgentTimeout)
		defer cancel()
	}

	view := e.buildView()
	result, err := h.Participate(callCtx, e.deps, view, instruction)
	if err != nil {
		e.forum.AppendTimeline(forum.EventError, h.DisplayName, err.Error())
		return
	}

	post, err := e.forum.Publish(h.DisplayName, result.Content, result.ReplyTo)
	if errors.Is(err, forum.ErrInvalidReplyTo) {
		// A hallucinated reply target is treated leniently, the same way
		// a non-conforming structured reply is (spec §4.4): drop the
		// reply target and publish the content anyway.
		post, err = e.forum.Publish(h.DisplayName, result.Content, nil)
	}
	if err != nil {
		e.forum.AppendTimeline(forum.EventError, h.DisplayName, err.Error())
		return
	}

	if len(result.Votes) > 0 {
		e.forum.ApplyVotes(h.DisplayName, toForumVotes(result.Votes))
	}
	e.forum.AppendTimeline(forum.EventAgentDone, h.DisplayName, fmt.Sprintf("post %d", post.ID))
}

func (e *Engine) buildView() agent.ForumView {
	topic := e.forum.Topic()
	return agent.ForumView{
		Question:       topic.Question,
		Owner:          topic.Owner,
		DiscussionMode: topic.DiscussionMode,
		RecentPosts:    e.forum.Browse(recentPostWindow),
	}
}

func toForumVotes(votes []agent.VoteIntent) []forum.VoteIntent {
	out := make([]forum.VoteIntent, len(votes))
	for i, v := range votes {
		out[i] = forum.VoteIntent{PostID: v.PostID, Up: v.Up}
	}
	return out
}

// consensusReached implements spec §4.5's predicate: get_top_posts(1) is
// non-empty and its upvote count >= ceil(0.7 * |pool|). Evaluated only in
// discussion mode.
func (e *Engine) consensusReached() bool {
	topic := e.forum.Topic()
	if !topic.DiscussionMode {
		return false
	}
	top := e.forum.GetTopPosts(1)
	if len(top) == 0 {
		return false
	}
	threshold := int(math.Ceil(0.7 * float64(len(e.pool.Handles))))
	return top[0].Upvotes >= threshold
}

// finish runs summarization and sets the topic concluded (spec §4.5
// "Summarization"). A summarization failure does not fail the topic: the
// conclusion becomes the failure message prefixed with "summary failed".
func (e *Engine) finish(ctx context.Context) {
	topic := e.forum.Topic()
	in := summarizer.Input{
		Question:   topic.Question,
		TopPosts:   e.forum.GetTopPosts(topSummaryCount),
		TotalPosts: e.forum.PostCount(),
		Rounds:     topic.CurrentRound,
	}

	summaryCtx := ctx
	if e.summaryTimeout > 0 {
		var cancel context.CancelFunc
		summaryCtx, cancel = context.WithTimeout(ctx, e.summaryTimeout)
		defer cancel()
	}

	conclusion, err := e.summarizer.Summarize(summaryCtx, in)
	if err != nil {
		conclusion = "summary failed: " + err.Error()
	}

	e.forum.SetConclusion(conclusion)
	e.forum.SetStatus(forum.StatusConcluded)
	e.forum.AppendTimeline(forum.EventConclude, "", "")

	if e.onTerminal != nil {
		e.onTerminal(e.forum.Topic())
	}
}

// terminate handles the cancelled/error terminal paths: no summarization
// call, conclusion is the given human-readable reason (spec §3
// "Lifecycle").
func (e *Engine) terminate(status forum.Status, kind forum.TimelineEventKind, conclusion string) {
	e.forum.SetConclusion(conclusion)
	e.forum.SetStatus(status)
	e.forum.AppendTimeline(kind, "", conclusion)

	if e.onTerminal != nil {
		e.onTerminal(e.forum.Topic())
	}
}
