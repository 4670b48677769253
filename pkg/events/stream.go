// Package events implements the per-topic push-based view of new posts and
// timeline entries described in spec §4.7, for SSE bridging by cmd/oasis.
// Grounded on tarsy/pkg/events/manager.go's ConnectionManager
// subscribe/broadcast idiom, simplified to single-process polling per
// spec §9 ("no distributed coordination"): each Stream call starts its own
// goroutine that polls the forum store once a second, substituting for
// ConnectionManager's websocket registry plus Postgres LISTEN/NOTIFY,
// since OASIS has no cross-process event source to bridge.
package events

import (
	"context"
	"time"

	"github.com/oasis-forum/oasis/pkg/forum"
)

// PollInterval is the floor spec §4.7 names ("consumers poll the forum at
// least once per second").
const PollInterval = time.Second

// Kind discriminates the shapes of Message.
type Kind string

const (
	// KindRound is a per-round header, emitted only in discussion mode
	// (spec §4.7 "per-round headers").
	KindRound Kind = "round"
	// KindPost carries one newly appended post, emitted only in
	// discussion mode, exactly once per post in append order (spec §4.7,
	// §5 "the stream guarantees each post appears exactly once in
	// order").
	KindPost Kind = "post"
	// KindTimeline carries one coarse-grained timeline event, emitted
	// only in execution mode (spec §4.7 "start, round, agent_call,
	// agent_done, conclude").
	KindTimeline Kind = "timeline"
	// KindDone is the terminal marker sent once the topic reaches a
	// terminal status; no further messages follow.
	KindDone Kind = "done"
)

// Message is one update yielded by Stream.
type Message struct {
	Kind     Kind
	Round    int
	Post     *forum.Post
	Timeline *forum.TimelineEvent
}

// Stream returns a lazy, infinite sequence of update messages for store's
// topic until it reaches a terminal status, then yields a KindDone
// message and closes the channel (spec §4.7). Cancelling ctx stops the
// stream early without a done marker, for a disconnecting SSE client.
func Stream(ctx context.Context, store *forum.Store) <-chan Message {
	out := make(chan Message)
	go run(ctx, store, out)
	return out
}

// poller tracks how much of the forum has already been emitted.
type poller struct {
	store        *forum.Store
	out          chan<- Message
	lastRound    int
	postsSent    int
	timelineSent int
}

func run(ctx context.Context, store *forum.Store, out chan<- Message) {
	defer close(out)

	p := &poller{store: store, out: out}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	if !p.emit(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.emit(ctx) {
				return
			}
		}
	}
}

// emit drains everything new since the last call and reports whether the
// stream should keep running (false once the topic is terminal or ctx is
// done).
func (p *poller) emit(ctx context.Context) bool {
	topic := p.store.Topic()

	if topic.DiscussionMode {
		if !p.emitDiscussion(ctx, topic) {
			return false
		}
	} else {
		if !p.emitExecution(ctx) {
			return false
		}
	}

	if topic.Status.IsTerminal() {
		p.send(ctx, Message{Kind: KindDone})
		return false
	}
	return true
}

func (p *poller) emitDiscussion(ctx context.Context, topic forum.Topic) bool {
	if topic.CurrentRound != p.lastRound {
		p.lastRound = topic.CurrentRound
		if !p.send(ctx, Message{Kind: KindRound, Round: p.lastRound}) {
			return false
		}
	}

	posts := p.store.AllPosts()
	for i := p.postsSent; i < len(posts); i++ {
		post := posts[i]
		if !p.send(ctx, Message{Kind: KindPost, Post: &post}) {
			return false
		}
	}
	p.postsSent = len(posts)
	return true
}

func (p *poller) emitExecution(ctx context.Context) bool {
	timeline := p.store.Timeline()
	for i := p.timelineSent; i < len(timeline); i++ {
		evt := timeline[i]
		if !p.send(ctx, Message{Kind: KindTimeline, Timeline: &evt}) {
			return false
		}
	}
	p.timelineSent = len(timeline)
	return true
}

func (p *poller) send(ctx context.Context, msg Message) bool {
	select {
	case p.out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
