// Package forum implements the append-only post log, vote accounting,
// timeline, and topic lifecycle state machine described in spec §3 and
// §4.3. The Store is the single serialization point for a topic: every
// mutation goes through it, the way tarsy's pkg/session.Session guards
// every field mutation behind its own mutex.
package forum

import "time"

// Status is a topic's lifecycle state (spec §3). Transitions form a DAG:
// pending -> discussing -> { concluded | error | cancelled }. No transition
// back.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDiscussing Status = "discussing"
	StatusConcluded  Status = "concluded"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether s is one of the five recognized statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDiscussing, StatusConcluded, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is one of the three terminal statuses
// (spec §3: concluded, error, cancelled never transition further).
func (s Status) IsTerminal() bool {
	return s == StatusConcluded || s == StatusError || s == StatusCancelled
}

// Post is an append-only entry in the forum (spec §3).
type Post struct {
	ID        int    `json:"id"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	ReplyTo   *int   `json:"reply_to,omitempty"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	Timestamp int64  `json:"timestamp"`
	Elapsed   int64  `json:"elapsed"`
}

// Score is the ranking key used by GetTopPosts: upvotes - downvotes.
func (p Post) Score() int {
	return p.Upvotes - p.Downvotes
}

// TimelineEventKind enumerates the coarse-grained progress markers (spec §3).
type TimelineEventKind string

const (
	EventStart     TimelineEventKind = "start"
	EventRound     TimelineEventKind = "round"
	EventAgentCall TimelineEventKind = "agent_call"
	EventAgentDone TimelineEventKind = "agent_done"
	EventPost      TimelineEventKind = "post"
	EventVote      TimelineEventKind = "vote"
	EventConclude  TimelineEventKind = "conclude"
	EventError     TimelineEventKind = "error"
	EventCancel    TimelineEventKind = "cancel"
)

// TimelineEvent is a coarse-grained progress marker used by the event
// stream (spec §3, §4.7).
type TimelineEvent struct {
	Elapsed int64             `json:"elapsed"`
	Event   TimelineEventKind `json:"event"`
	Agent   string            `json:"agent,omitempty"`
	Detail  string            `json:"detail,omitempty"`
}

// Topic is the root unit of work (spec §3).
type Topic struct {
	TopicID        string `json:"topic_id"`
	Question       string `json:"question"`
	Owner          string `json:"owner"`
	Status         Status `json:"status"`
	CurrentRound   int    `json:"current_round"`
	MaxRounds      int    `json:"max_rounds"`
	DiscussionMode bool   `json:"discussion"`
	Conclusion     string `json:"conclusion"`
	CreatedAt      int64  `json:"created_at"`
}

// Clock supplies wall-clock time to the forum, injected so tests are
// deterministic (spec §9 "Time and identifiers").
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
