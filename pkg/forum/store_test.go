package forum

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestPublish_DenseMonotonicIDs(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)

	p1, err := s.Publish("a", "one", nil)
	require.NoError(t, err)
	p2, err := s.Publish("b", "two", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, p1.ID)
	assert.Equal(t, 2, p2.ID)
}

func TestPublish_RejectsForumClosed(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusConcluded)

	_, err := s.Publish("a", "one", nil)
	assert.ErrorIs(t, err, ErrForumClosed)
}

func TestPublish_RejectsInvalidReplyTo(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)

	bad := 99
	_, err := s.Publish("host", "rule", &bad)
	assert.ErrorIs(t, err, ErrInvalidReplyTo)
}

func TestPublish_AcceptsReplyToEarlierPost(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)

	p1, err := s.Publish("host", "rule", nil)
	require.NoError(t, err)

	reply := p1.ID
	p2, err := s.Publish("x", "answer", &reply)
	require.NoError(t, err)
	require.NotNil(t, p2.ReplyTo)
	assert.Equal(t, p1.ID, *p2.ReplyTo)
}

func TestApplyVotes_DedupesWithinOneBatch(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)
	p, err := s.Publish("a", "x", nil)
	require.NoError(t, err)

	s.ApplyVotes("voter", []VoteIntent{
		{PostID: p.ID, Up: true},
		{PostID: p.ID, Up: true}, // duplicate within the same call: counts once
	})

	posts := s.AllPosts()
	require.Len(t, posts, 1)
	assert.Equal(t, 1, posts[0].Upvotes)
}

func TestApplyVotes_AcrossCallsAccumulates(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)
	p, err := s.Publish("a", "x", nil)
	require.NoError(t, err)

	s.ApplyVotes("voter1", []VoteIntent{{PostID: p.ID, Up: true}})
	s.ApplyVotes("voter1", []VoteIntent{{PostID: p.ID, Up: true}})

	posts := s.AllPosts()
	assert.Equal(t, 2, posts[0].Upvotes)
}

func TestApplyVotes_UnknownPostSilentlyDropped(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)

	assert.NotPanics(t, func() {
		s.ApplyVotes("voter", []VoteIntent{{PostID: 42, Up: true}})
	})
}

func TestGetTopPosts_SortedByScoreThenID(t *testing.T) {
	s := New("t1", "q", "owner", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)

	p1, _ := s.Publish("a", "1", nil)
	p2, _ := s.Publish("b", "2", nil)
	p3, _ := s.Publish("c", "3", nil)

	s.ApplyVotes("v1", []VoteIntent{{PostID: p2.ID, Up: true}})
	s.ApplyVotes("v2", []VoteIntent{{PostID: p2.ID, Up: true}})
	s.ApplyVotes("v1", []VoteIntent{{PostID: p3.ID, Up: true}})
	s.ApplyVotes("v2", []VoteIntent{{PostID: p3.ID, Up: true}})
	// p2 and p3 tie at score 2; p1 at score 0.

	top := s.GetTopPosts(2)
	require.Len(t, top, 2)
	assert.Equal(t, p2.ID, top[0].ID) // tie broken by ascending id
	assert.Equal(t, p3.ID, top[1].ID)
	_ = p1
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New("t1", "question", "owner1", 3, true, fixedClock{time.Unix(1000, 0)})
	s.SetStatus(StatusDiscussing)
	s.Publish("a", "hello", nil)
	reply := 1
	s.Publish("b", "world", &reply)
	s.ApplyVotes("a", []VoteIntent{{PostID: 1, Up: true}})
	s.AppendTimeline(EventStart, "", "")
	s.SetStatus(StatusConcluded)
	s.SetConclusion("done")

	path := SnapshotPath("/data", "t1")
	require.NoError(t, s.Snapshot(fs, path))

	restored, err := Restore(fs, path, fixedClock{time.Unix(1000, 0)})
	require.NoError(t, err)

	assert.Equal(t, s.Topic(), restored.Topic())
	assert.Equal(t, s.AllPosts(), restored.AllPosts())
	assert.Equal(t, s.Timeline(), restored.Timeline())
}

func TestSnapshotRestore_PreservesUnknownFields(t *testing.T) {
	fs := afero.NewMemMapFs()
	raw := `{
		"topic_id": "t1", "question": "q", "owner": "o", "status": "concluded",
		"current_round": 1, "max_rounds": 1, "discussion": true,
		"created_at": 1000, "conclusion": "done",
		"posts": [], "timeline": [],
		"future_field": {"nested": true}
	}`
	path := "/data/t1.json"
	require.NoError(t, afero.WriteFile(fs, path, []byte(raw), 0o644))

	restored, err := Restore(fs, path, fixedClock{time.Unix(1000, 0)})
	require.NoError(t, err)

	require.NoError(t, restored.Snapshot(fs, path))
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "future_field")
}
