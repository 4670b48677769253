package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis-forum/oasis/pkg/agent"
	"github.com/oasis-forum/oasis/pkg/forum"
	"github.com/oasis-forum/oasis/pkg/llm"
	"github.com/oasis-forum/oasis/pkg/schedule"
	"github.com/oasis-forum/oasis/pkg/summarizer"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type funcLLM struct {
	fn func(messages []llm.Message, temperature float64, maxTokens int) (string, error)
}

func (f *funcLLM) Complete(_ context.Context, messages []llm.Message, temperature float64, maxTokens int) (string, error) {
	return f.fn(messages, temperature, maxTokens)
}

type stubSummarizer struct {
	text string
	err  error
}

func (s stubSummarizer) Summarize(_ context.Context, _ summarizer.Input) (string, error) {
	return s.text, s.err
}

// blockingSummarizer waits for its context to end and returns its error,
// so tests can observe whether a bound was actually applied to it.
type blockingSummarizer struct{}

func (blockingSummarizer) Summarize(ctx context.Context, _ summarizer.Input) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newExpertStep(name string) schedule.Step {
	return schedule.Step{Kind: schedule.StepExpert, Name: name}
}

// Scenario 1: single direct-agent, single round (spec §8 scenario 1).
func TestEngine_SingleDirectAgentSingleRound(t *testing.T) {
	presets := agent.NewMemoryPresetStore(map[string]agent.Preset{
		"creative": {DisplayName: "Creator", Persona: "be inventive"},
	})
	pool := agent.NewResolver(presets).BuildPool("owner-1", []string{"creative#temp#1"})

	sched := &schedule.Schedule{Version: 1, Repeat: true, Steps: []schedule.Step{newExpertStep("creative#temp#1")}}
	store := forum.New("t1", "what should we build?", "owner-1", 1, true, fixedClock{time.Unix(1000, 0)})

	stub := &llm.StubClient{Response: "IDEA-A"}
	deps := agent.Dependencies{LLM: stub}
	e := New(sched, pool, store, deps, stubSummarizer{text: "we should build IDEA-A"}, true, 0)

	e.Run(context.Background())

	topic := store.Topic()
	assert.Equal(t, forum.StatusConcluded, topic.Status)
	assert.NotEmpty(t, topic.Conclusion)

	posts := store.AllPosts()
	require.Len(t, posts, 1)
	assert.Equal(t, 1, posts[0].ID)
	assert.Equal(t, "Creator", posts[0].Author)
	assert.Contains(t, posts[0].Content, "IDEA-A")
}

// Scenario 2: parallel fan-out preserves step boundary (spec §8 scenario 2).
func TestEngine_ParallelFanOutPreservesStepBoundary(t *testing.T) {
	pool := agent.NewResolver(agent.NewMemoryPresetStore(nil)).BuildPool("owner-1", []string{"a#temp#1", "b#temp#1", "c#temp#1"})

	sched := &schedule.Schedule{
		Version: 1,
		Repeat:  false,
		Steps: []schedule.Step{
			{Kind: schedule.StepParallel, Members: []schedule.Member{{Name: "a#temp#1"}, {Name: "b#temp#1"}}},
			newExpertStep("c#temp#1"),
		},
	}
	store := forum.New("t2", "design a feature", "owner-1", 0, false, fixedClock{time.Unix(2000, 0)})

	stub := &llm.StubClient{Response: "done"}
	deps := agent.Dependencies{LLM: stub}
	e := New(sched, pool, store, deps, stubSummarizer{text: "summary"}, false, 0)

	e.Run(context.Background())

	topic := store.Topic()
	require.Equal(t, forum.StatusConcluded, topic.Status)

	posts := store.AllPosts()
	require.Len(t, posts, 3)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{posts[0].Author, posts[1].Author})
	assert.Equal(t, "c", posts[2].Author)

	// Non-repeat schedules count each step as one round; this schedule has
	// two steps, so current_round and max_rounds both end at 2.
	assert.Equal(t, 2, topic.CurrentRound)
	assert.Equal(t, topic.CurrentRound, topic.MaxRounds)
}

// Scenario 3: consensus early-stop (spec §8 scenario 3).
func TestEngine_ConsensusEarlyStop(t *testing.T) {
	names := []string{"a#temp#1", "b#temp#1", "c#temp#1", "d#temp#1"}
	pool := agent.NewResolver(agent.NewMemoryPresetStore(nil)).BuildPool("owner-1", names)

	sched := &schedule.Schedule{
		Version: 1,
		Repeat:  true,
		Steps:   []schedule.Step{{Kind: schedule.StepAll}},
	}
	store := forum.New("t3", "pick a direction", "owner-1", 5, true, fixedClock{time.Unix(3000, 0)})

	var calls int32
	stub := &funcLLM{fn: func(_ []llm.Message, _ float64, _ int) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 4 {
			return fmt.Sprintf(`{"content": "opening-%d"}`, n), nil
		}
		return `{"content": "agreed", "votes": [{"post_id": 1, "vote": true}]}`, nil
	}}
	deps := agent.Dependencies{LLM: stub}
	e := New(sched, pool, store, deps, stubSummarizer{text: "consensus summary"}, true, 0)

	e.Run(context.Background())

	topic := store.Topic()
	assert.Equal(t, forum.StatusConcluded, topic.Status)
	assert.Equal(t, 2, topic.CurrentRound)

	post1 := store.AllPosts()[0]
	assert.Equal(t, 1, post1.ID)
	assert.GreaterOrEqual(t, post1.Upvotes, 3)
}

// Scenario 4: manual injection + reply_to validation (spec §8 scenario 4).
func TestEngine_ManualInjectionAndReplyTo(t *testing.T) {
	pool := agent.NewResolver(agent.NewMemoryPresetStore(nil)).BuildPool("owner-1", []string{"x#temp#1"})

	sched := &schedule.Schedule{
		Version: 1,
		Repeat:  true,
		Steps: []schedule.Step{
			{Kind: schedule.StepManual, Author: "host", Content: "rule"},
			newExpertStep("x#temp#1"),
		},
	}
	store := forum.New("t4", "follow the rule", "owner-1", 1, true, fixedClock{time.Unix(4000, 0)})

	stub := &llm.StubClient{Response: `{"content": "based on rule", "reply_to": 1}`}
	deps := agent.Dependencies{LLM: stub}
	e := New(sched, pool, store, deps, stubSummarizer{text: "summary"}, false, 0)

	e.Run(context.Background())

	posts := store.AllPosts()
	require.Len(t, posts, 2)
	assert.Equal(t, "host", posts[0].Author)
	require.NotNil(t, posts[1].ReplyTo)
	assert.Equal(t, 1, *posts[1].ReplyTo)
}

func TestEngine_ManualStepWithBadReplyToIsRejectedAtPublishTime(t *testing.T) {
	pool := agent.NewResolver(agent.NewMemoryPresetStore(nil)).BuildPool("owner-1", nil)

	bad := 99
	sched := &schedule.Schedule{
		Version: 1,
		Repeat:  true,
		Steps: []schedule.Step{
			{Kind: schedule.StepManual, Author: "host", Content: "rule", ReplyTo: &bad, HasReply: true},
		},
	}
	store := forum.New("t4b", "follow the rule", "owner-1", 1, true, fixedClock{time.Unix(4100, 0)})

	e := New(sched, pool, store, agent.Dependencies{}, stubSummarizer{text: "summary"}, false, 0)
	e.Run(context.Background())

	topic := store.Topic()
	assert.Equal(t, forum.StatusError, topic.Status)
	assert.Contains(t, topic.Conclusion, "reply_to")
	assert.Empty(t, store.AllPosts())
}

// Scenario 5: cancel mid-run (spec §8 scenario 5).
func TestEngine_CancelMidRun(t *testing.T) {
	pool := agent.NewResolver(agent.NewMemoryPresetStore(nil)).BuildPool("owner-1", []string{"x#temp#1", "y#temp#1"})

	sched := &schedule.Schedule{
		Version: 1,
		Repeat:  true,
		Steps:   []schedule.Step{newExpertStep("x#temp#1"), newExpertStep("y#temp#1")},
	}
	store := forum.New("t5", "long discussion", "owner-1", 3, false, fixedClock{time.Unix(5000, 0)})

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	stub := &funcLLM{fn: func(_ []llm.Message, _ float64, _ int) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 3 {
			// Round 2, step 1: the call is in flight when cancellation
			// fires; it still completes and publishes (spec §5
			// "Cancellation").
			cancel()
		}
		return fmt.Sprintf("reply-%d", n), nil
	}}
	deps := agent.Dependencies{LLM: stub}
	e := New(sched, pool, store, deps, stubSummarizer{text: "summary"}, false, 0)

	e.Run(ctx)

	topic := store.Topic()
	assert.Equal(t, forum.StatusCancelled, topic.Status)
	assert.Contains(t, topic.Conclusion, "cancelled")

	posts := store.AllPosts()
	require.Len(t, posts, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "no further agent calls after cancellation fires")
}

// Scenario 6: persistence round-trip (spec §8 scenario 6).
func TestEngine_PersistenceRoundTrip(t *testing.T) {
	pool := agent.NewResolver(agent.NewMemoryPresetStore(nil)).BuildPool("owner-1", []string{"a#temp#1", "b#temp#1", "c#temp#1"})

	sched := &schedule.Schedule{
		Version: 1,
		Repeat:  false,
		Steps: []schedule.Step{
			{Kind: schedule.StepParallel, Members: []schedule.Member{{Name: "a#temp#1"}, {Name: "b#temp#1"}}},
			newExpertStep("c#temp#1"),
		},
	}
	clock := fixedClock{time.Unix(6000, 0)}
	store := forum.New("t6", "design a feature", "owner-1", 0, false, clock)

	stub := &llm.StubClient{Response: "done"}
	deps := agent.Dependencies{LLM: stub}
	e := New(sched, pool, store, deps, stubSummarizer{text: "summary"}, false, 0)
	e.Run(context.Background())

	fs := afero.NewMemMapFs()
	path := forum.SnapshotPath("/data", "t6")
	require.NoError(t, store.Snapshot(fs, path))

	restored, err := forum.Restore(fs, path, clock)
	require.NoError(t, err)

	assert.Equal(t, store.Topic(), restored.Topic())
	assert.Equal(t, store.AllPosts(), restored.AllPosts())
	assert.Equal(t, store.Timeline(), restored.Timeline())
}

// Summarization has its own bound, separate from the round-loop context
// (spec §5): a summarizer that never returns on its own is still cut off
// by summaryTimeout.
func TestEngine_SummaryTimeoutBoundsSummarizeCall(t *testing.T) {
	pool := agent.NewResolver(agent.NewMemoryPresetStore(nil)).BuildPool("owner-1", []string{"x#temp#1"})

	sched := &schedule.Schedule{Version: 1, Repeat: false, Steps: []schedule.Step{newExpertStep("x#temp#1")}}
	store := forum.New("t7", "bounded summary", "owner-1", 0, false, fixedClock{time.Unix(7000, 0)})

	stub := &llm.StubClient{Response: "done"}
	deps := agent.Dependencies{LLM: stub}
	e := New(sched, pool, store, deps, blockingSummarizer{}, false, 20*time.Millisecond)

	start := time.Now()
	e.Run(context.Background())
	elapsed := time.Since(start)

	topic := store.Topic()
	assert.Equal(t, forum.StatusConcluded, topic.Status)
	assert.Contains(t, topic.Conclusion, "summary failed")
	assert.Less(t, elapsed, 2*time.Second, "summarize call must be bounded by summaryTimeout, not hang")
}
