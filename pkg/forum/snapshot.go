package forum

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// blob is the on-disk shape of a persisted topic (spec §6). Known fields
// are named to match the spec's blob contract exactly; Extra carries any
// key this version of OASIS does not recognize, so round-tripping through
// Snapshot/Restore never drops forward-compatible data written by a newer
// version of the format.
type blob struct {
	TopicID      string          `json:"topic_id"`
	Question     string          `json:"question"`
	Owner        string          `json:"owner"`
	Status       Status          `json:"status"`
	CurrentRound int             `json:"current_round"`
	MaxRounds    int             `json:"max_rounds"`
	Discussion   bool            `json:"discussion"`
	CreatedAt    int64           `json:"created_at"`
	Conclusion   string          `json:"conclusion"`
	Posts        []Post          `json:"posts"`
	Timeline     []TimelineEvent `json:"timeline"`

	Extra map[string]json.RawMessage `json:"-"`
}

var knownBlobKeys = map[string]bool{
	"topic_id": true, "question": true, "owner": true, "status": true,
	"current_round": true, "max_rounds": true, "discussion": true,
	"created_at": true, "conclusion": true, "posts": true, "timeline": true,
}

func (b *blob) UnmarshalJSON(data []byte) error {
	type alias blob
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*b = blob(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownBlobKeys[k] {
			b.Extra[k] = v
		}
	}
	return nil
}

func (b blob) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(b.Extra)+len(knownBlobKeys))
	for k, v := range b.Extra {
		merged[k] = v
	}

	type alias blob
	known, err := json.Marshal(alias(b))
	if err != nil {
		return nil, err
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range knownMap {
		merged[k] = v
	}

	return json.Marshal(merged)
}

// Snapshot writes the store's current state to fs at path, using a
// temp-file-then-rename discipline to prevent torn writes, per the
// spec's own Design Note (§9 "a lock-file or atomic rename discipline
// prevents torn writes").
func (s *Store) Snapshot(fs afero.Fs, path string) error {
	s.mu.RLock()
	b := blob{
		TopicID:      s.topic.TopicID,
		Question:     s.topic.Question,
		Owner:        s.topic.Owner,
		Status:       s.topic.Status,
		CurrentRound: s.topic.CurrentRound,
		MaxRounds:    s.topic.MaxRounds,
		Discussion:   s.topic.DiscussionMode,
		CreatedAt:    s.topic.CreatedAt,
		Conclusion:   s.topic.Conclusion,
		Posts:        append([]Post(nil), s.posts...),
		Timeline:     append([]TimelineEvent(nil), s.timeline...),
		Extra:        s.extra,
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal topic snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Restore rebuilds a Store from a persisted blob. No derived data is
// recomputed: posts, timeline, votes and status are taken verbatim from
// the blob (spec §4.3 "restore... recomputes no derived data").
func Restore(fs afero.Fs, path string, clock Clock) (*Store, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	if clock == nil {
		clock = SystemClock{}
	}

	return &Store{
		clock: clock,
		topic: Topic{
			TopicID:        b.TopicID,
			Question:       b.Question,
			Owner:          b.Owner,
			Status:         b.Status,
			CurrentRound:   b.CurrentRound,
			MaxRounds:      b.MaxRounds,
			DiscussionMode: b.Discussion,
			Conclusion:     b.Conclusion,
			CreatedAt:      b.CreatedAt,
		},
		posts:    b.Posts,
		timeline: b.Timeline,
		extra:    b.Extra,
	}, nil
}

// SnapshotPath returns the conventional one-file-per-topic path under dir.
func SnapshotPath(dir, topicID string) string {
	return filepath.Join(dir, topicID+".json")
}
