package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis-forum/oasis/pkg/forum"
)

func drain(t *testing.T, ch <-chan Message, timeout time.Duration) []Message {
	t.Helper()
	var out []Message
	deadline := time.After(timeout)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
		case <-deadline:
			t.Fatalf("timed out draining stream, got %d messages", len(out))
			return out
		}
	}
}

func TestStreamDiscussionModeEmitsPostsInOrder(t *testing.T) {
	store := forum.New("t1", "question", "alice", 2, true, forum.SystemClock{})
	store.SetStatus(forum.StatusDiscussing)
	store.SetCurrentRound(1)
	_, err := store.Publish("Creator", "first", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := Stream(ctx, store)

	// Allow the first immediate emit to run before publishing more.
	time.Sleep(50 * time.Millisecond)
	_, err = store.Publish("Critic", "second", nil)
	require.NoError(t, err)
	store.SetStatus(forum.StatusConcluded)
	store.SetConclusion("done")

	msgs := drain(t, ch, 3*time.Second)

	var postIDs []int
	sawDone := false
	for _, m := range msgs {
		switch m.Kind {
		case KindPost:
			postIDs = append(postIDs, m.Post.ID)
		case KindDone:
			sawDone = true
		}
	}
	assert.Equal(t, []int{1, 2}, postIDs)
	assert.True(t, sawDone)
}

func TestStreamExecutionModeEmitsTimeline(t *testing.T) {
	store := forum.New("t2", "question", "alice", 1, false, forum.SystemClock{})
	store.SetStatus(forum.StatusDiscussing)
	store.AppendTimeline(forum.EventStart, "", "")
	store.AppendTimeline(forum.EventAgentCall, "Worker", "")
	store.SetStatus(forum.StatusConcluded)
	store.SetConclusion("done")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs := drain(t, Stream(ctx, store), 3*time.Second)

	var kinds []forum.TimelineEventKind
	sawDone := false
	for _, m := range msgs {
		switch m.Kind {
		case KindTimeline:
			kinds = append(kinds, m.Timeline.Event)
		case KindDone:
			sawDone = true
		}
	}
	assert.Contains(t, kinds, forum.EventStart)
	assert.Contains(t, kinds, forum.EventAgentCall)
	assert.True(t, sawDone)
}

func TestStreamStopsOnContextCancelWithoutDone(t *testing.T) {
	store := forum.New("t3", "question", "alice", 5, true, forum.SystemClock{})
	store.SetStatus(forum.StatusDiscussing)

	ctx, cancel := context.WithCancel(context.Background())
	ch := Stream(ctx, store)
	cancel()

	_, ok := <-ch
	for ok {
		_, ok = <-ch
	}
	// channel closed without ever reaching a terminal status.
	assert.NotEqual(t, forum.StatusConcluded, store.Topic().Status)
}
