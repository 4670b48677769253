package forum

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// VoteIntent is one {post_id, polarity} pair an agent cast in a single
// participate() call. Duplicate intents for the same (PostID, Up) pair
// within one ApplyVotes call collapse to at most one unit, per spec
// §4.3 ("never double-counts the same (post_id, voter_name, polarity)
// within a single dispatch call of an agent").
type VoteIntent struct {
	PostID int
	Up     bool
}

// Store holds the in-memory topic state and is the single serialization
// point for a topic: publish, vote, browse, get_top_posts, append_timeline,
// snapshot and restore all go through it, generalizing the mutex-guarded
// single-struct idiom of the teacher's pkg/session.Session to an
// append-only multi-post log.
type Store struct {
	mu       sync.RWMutex
	clock    Clock
	topic    Topic
	posts    []Post
	timeline []TimelineEvent
	extra    map[string]json.RawMessage // unknown blob fields, preserved across Snapshot/Restore
}

// New creates a Store for a freshly created topic, status pending.
func New(topicID, question, owner string, maxRounds int, discussionMode bool, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Store{
		clock: clock,
		topic: Topic{
			TopicID:        topicID,
			Question:       question,
			Owner:          owner,
			Status:         StatusPending,
			MaxRounds:      maxRounds,
			DiscussionMode: discussionMode,
			CreatedAt:      clock.Now().Unix(),
		},
	}
}

func (s *Store) elapsed() int64 {
	return s.clock.Now().Unix() - s.topic.CreatedAt
}

// Topic returns a copy of the current topic metadata (safe for concurrent
// reads), mirroring Session.Clone in the teacher.
func (s *Store) Topic() Topic {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topic
}

// SetStatus transitions the topic's status. Callers (the engine, and
// pkg/registry when it reconciles an interrupted topic) are responsible
// for only requesting forward transitions per the DAG in spec §3; Store
// does not itself re-validate the DAG.
func (s *Store) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic.Status = status
}

// SetConclusion sets the topic's conclusion text.
func (s *Store) SetConclusion(conclusion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic.Conclusion = conclusion
}

// SetCurrentRound sets current_round (and, for non-repeat schedules, the
// engine also calls SetMaxRounds to len(steps) per spec §4.5).
func (s *Store) SetCurrentRound(round int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic.CurrentRound = round
}

// SetMaxRounds overrides max_rounds (used by the engine's non-repeat
// branch, which sets max_rounds = len(steps), spec §4.5).
func (s *Store) SetMaxRounds(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topic.MaxRounds = n
}

// Publish assigns a dense, monotonically increasing id, stamps timestamp
// and elapsed, validates reply_to, appends the post and a post timeline
// event (spec §4.3).
func (s *Store) Publish(author, content string, replyTo *int) (Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.publishableLocked() {
		return Post{}, ErrForumClosed
	}

	if replyTo != nil {
		if !s.postExistsLocked(*replyTo) || *replyTo >= s.nextIDLocked() {
			return Post{}, ErrInvalidReplyTo
		}
	}

	now := s.clock.Now()
	post := Post{
		ID:        s.nextIDLocked(),
		Author:    author,
		Content:   content,
		ReplyTo:   replyTo,
		Timestamp: now.Unix(),
		Elapsed:   now.Unix() - s.topic.CreatedAt,
	}
	s.posts = append(s.posts, post)
	s.appendTimelineLocked(TimelineEvent{
		Elapsed: post.Elapsed,
		Event:   EventPost,
		Agent:   author,
	})
	return post, nil
}

func (s *Store) publishableLocked() bool {
	return !s.topic.Status.IsTerminal()
}

func (s *Store) nextIDLocked() int {
	return len(s.posts) + 1
}

func (s *Store) postExistsLocked(id int) bool {
	for _, p := range s.posts {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ApplyVotes increments vote counters for a batch of intents cast by one
// agent in one dispatch call. Votes on unknown ids are silently dropped
// (spec §4.3).
func (s *Store) ApplyVotes(voterName string, intents []VoteIntent) {
	if len(intents) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[VoteIntent]bool, len(intents))
	for _, in := range intents {
		if seen[in] {
			continue
		}
		seen[in] = true

		idx := s.findPostIndexLocked(in.PostID)
		if idx < 0 {
			continue
		}
		if in.Up {
			s.posts[idx].Upvotes++
		} else {
			s.posts[idx].Downvotes++
		}
		s.appendTimelineLocked(TimelineEvent{
			Elapsed: s.elapsed(),
			Event:   EventVote,
			Agent:   voterName,
			Detail:  fmt.Sprintf("post %d", in.PostID),
		})
	}
}

func (s *Store) findPostIndexLocked(id int) int {
	for i, p := range s.posts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Browse returns a copy of the most recent k posts (k<=0 means all), in
// append order, for prompt construction (spec §4.4 "the last K posts").
func (s *Store) Browse(k int) []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || k >= len(s.posts) {
		out := make([]Post, len(s.posts))
		copy(out, s.posts)
		return out
	}
	out := make([]Post, k)
	copy(out, s.posts[len(s.posts)-k:])
	return out
}

// AllPosts returns every post, in append order.
func (s *Store) AllPosts() []Post {
	return s.Browse(-1)
}

// GetTopPosts returns up to k posts sorted by upvotes-downvotes
// descending, ties broken by ascending id (spec §4.3, §8).
func (s *Store) GetTopPosts(k int) []Post {
	s.mu.RLock()
	posts := make([]Post, len(s.posts))
	copy(posts, s.posts)
	s.mu.RUnlock()

	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Score() != posts[j].Score() {
			return posts[i].Score() > posts[j].Score()
		}
		return posts[i].ID < posts[j].ID
	})

	if k <= 0 || k >= len(posts) {
		return posts
	}
	return posts[:k]
}

// AppendTimeline appends a timeline event, stamping elapsed from the
// clock (spec §4.3, §5 "timeline events are totally ordered by append
// time and are never rewritten").
func (s *Store) AppendTimeline(event TimelineEventKind, agent, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendTimelineLocked(TimelineEvent{
		Elapsed: s.elapsed(),
		Event:   event,
		Agent:   agent,
		Detail:  detail,
	})
}

func (s *Store) appendTimelineLocked(e TimelineEvent) {
	s.timeline = append(s.timeline, e)
}

// Timeline returns a copy of every timeline event in append order.
func (s *Store) Timeline() []TimelineEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TimelineEvent, len(s.timeline))
	copy(out, s.timeline)
	return out
}

// PostCount returns the number of posts published so far.
func (s *Store) PostCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}
