// Package registry is the process-wide topic map (spec §4.6): it creates
// topics, enforces owner checks, dispatches cancel/purge requests to the
// right engine, and reconciles live topics across process start-up and
// shutdown. Grounded on tarsy/pkg/session/manager.go's RWMutex-guarded
// map-with-Get shape and tarsy/pkg/queue/pool.go's activeSessions
// cancel-registry pattern, merged into one type since OASIS has no
// separate worker-pool layer: each topic's goroutine is its own worker.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/oasis-forum/oasis/pkg/agent"
	"github.com/oasis-forum/oasis/pkg/engine"
	"github.com/oasis-forum/oasis/pkg/forum"
	"github.com/oasis-forum/oasis/pkg/schedule"
	"github.com/oasis-forum/oasis/pkg/summarizer"
)

// Defaults are the engine-wide settings a create_topic call falls back to
// when it does not override them, mirroring pkg/config.EngineDefaults.
type Defaults struct {
	MaxRounds      int
	EarlyStop      bool
	DiscussionMode bool
	SummaryTimeout time.Duration
}

// CreateTopicRequest is the create_topic argument bundle (spec §6).
type CreateTopicRequest struct {
	Question     string
	Owner        string
	MaxRounds    int    // 0 means "use Defaults.MaxRounds"
	ScheduleYAML []byte

	// Discussion overrides both the schedule's own `discussion` key and
	// Defaults.DiscussionMode when non-nil; nil defers to the schedule,
	// then to Defaults (spec §6's create_topic takes discussion directly,
	// while the schedule YAML's own `discussion` key is the
	// schedule-author's default, per spec §6 "Schedule YAML").
	Discussion *bool

	OnComplete string // completion callback URL; empty means none
}

type topicEntry struct {
	store  *forum.Store
	cancel context.CancelFunc
}

// Registry is the process-wide topic map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*topicEntry

	resolver   *agent.Resolver
	deps       agent.Dependencies
	summarizer summarizer.Summarizer
	defaults   Defaults

	fs      afero.Fs
	dataDir string

	callback *Callback
}

// New constructs an empty Registry. callback may be nil if no topic in
// this deployment ever sets an on_complete URL.
func New(resolver *agent.Resolver, deps agent.Dependencies, summ summarizer.Summarizer, fs afero.Fs, dataDir string, defaults Defaults, callback *Callback) *Registry {
	return &Registry{
		entries:    make(map[string]*topicEntry),
		resolver:   resolver,
		deps:       deps,
		summarizer: summ,
		defaults:   defaults,
		fs:         fs,
		dataDir:    dataDir,
		callback:   callback,
	}
}

// CreateTopic parses the schedule, resolves the agent pool, and starts the
// engine as a detached goroutine. *schedule.BadSchedule is returned
// verbatim and no topic is created (spec §7 "BadSchedule ... topic is not
// created").
func (r *Registry) CreateTopic(req CreateTopicRequest) (string, error) {
	sched, err := schedule.ParseSchedule(req.ScheduleYAML)
	if err != nil {
		return "", err
	}

	discussionMode := r.defaults.DiscussionMode
	if sched.DiscussionModeSet {
		discussionMode = sched.DiscussionMode
	}
	if req.Discussion != nil {
		discussionMode = *req.Discussion
	}

	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = r.defaults.MaxRounds
	}

	topicID := uuid.NewString()
	store := forum.New(topicID, req.Question, req.Owner, maxRounds, discussionMode, forum.SystemClock{})

	pool := r.resolver.BuildPool(req.Owner, sched.ReferencedAgentNames())
	eng := engine.New(sched, pool, store, r.deps, r.summarizer, r.defaults.EarlyStop, r.defaults.SummaryTimeout)

	topicCtx, cancel := context.WithCancel(context.Background())
	entry := &topicEntry{store: store, cancel: cancel}

	onComplete := req.OnComplete
	eng.OnTerminal(func(topic forum.Topic) {
		r.onTerminal(topic, store, onComplete)
	})

	r.mu.Lock()
	r.entries[topicID] = entry
	r.mu.Unlock()

	go eng.Run(topicCtx)

	return topicID, nil
}

// onTerminal persists the topic and fires the completion callback when
// the engine reaches a terminal status (spec §6). Persist failures are
// logged, never surfaced: "a subsequent successful write supersedes"
// (spec §7).
func (r *Registry) onTerminal(topic forum.Topic, store *forum.Store, onComplete string) {
	if err := r.persist(store); err != nil {
		slog.Error("registry: failed to persist topic on terminal", "topic_id", topic.TopicID, "error", err)
	}
	if onComplete != "" && r.callback != nil {
		r.callback.Notify(context.Background(), onComplete, topic)
	}
}

func (r *Registry) persist(store *forum.Store) error {
	path := forum.SnapshotPath(r.dataDir, store.Topic().TopicID)
	return store.Snapshot(r.fs, path)
}

// GetTopic returns the current topic state, enforcing the owner check
// (spec §6 "fails NotFound / Forbidden").
func (r *Registry) GetTopic(topicID, owner string) (forum.Topic, error) {
	entry, err := r.lookup(topicID, owner)
	if err != nil {
		return forum.Topic{}, err
	}
	return entry.store.Topic(), nil
}

// TopicStore returns the live forum.Store backing topicID, for callers
// that need direct read access beyond the Topic snapshot (spec §4.7's
// event stream polls the store itself rather than GetTopic's copy).
func (r *Registry) TopicStore(topicID, owner string) (*forum.Store, error) {
	entry, err := r.lookup(topicID, owner)
	if err != nil {
		return nil, err
	}
	return entry.store, nil
}

// ListTopics returns every topic owned by owner, sorted by created_at
// descending (spec §6).
func (r *Registry) ListTopics(owner string) []forum.Topic {
	r.mu.RLock()
	entries := make([]*topicEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	topics := make([]forum.Topic, 0, len(entries))
	for _, e := range entries {
		t := e.store.Topic()
		if t.Owner == owner {
			topics = append(topics, t)
		}
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].CreatedAt > topics[j].CreatedAt })
	return topics
}

// CancelTopic requests cooperative cancellation (spec §5). A second
// cancel is a no-op: context.CancelFunc is itself idempotent.
func (r *Registry) CancelTopic(topicID, owner string) error {
	entry, err := r.lookup(topicID, owner)
	if err != nil {
		return err
	}
	entry.cancel()
	return nil
}

// PurgeTopic cancels the topic (purge implies cancel, spec §5), deletes
// its persisted blob, and removes it from the registry.
func (r *Registry) PurgeTopic(topicID, owner string) error {
	entry, err := r.lookup(topicID, owner)
	if err != nil {
		return err
	}
	entry.cancel()

	path := forum.SnapshotPath(r.dataDir, topicID)
	if err := r.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("registry: failed to remove persisted blob on purge", "topic_id", topicID, "error", err)
	}

	r.mu.Lock()
	delete(r.entries, topicID)
	r.mu.Unlock()
	return nil
}

// PurgeAll purges every topic owned by owner and returns the count purged
// (spec §6 "purge_all(owner) → count").
func (r *Registry) PurgeAll(owner string) int {
	r.mu.RLock()
	ids := make([]string, 0)
	for id, e := range r.entries {
		if e.store.Topic().Owner == owner {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.PurgeTopic(id, owner)
	}
	return len(ids)
}

const waitPollInterval = 200 * time.Millisecond

// WaitConclusion polls the topic's status until it reaches a terminal
// state or timeout elapses, per spec §6 "wait_conclusion(...) →
// conclusion | Timeout" and §4.7's poll-based consumption model (polled
// faster than the stream's 1-second floor since this is purely
// in-process).
func (r *Registry) WaitConclusion(ctx context.Context, topicID, owner string, timeout time.Duration) (string, error) {
	entry, err := r.lookup(topicID, owner)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		topic := entry.store.Topic()
		if topic.Status.IsTerminal() {
			return topic.Conclusion, nil
		}
		if timeout > 0 && time.Now().After(deadline) {
			return "", ErrTimeout
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Registry) lookup(topicID, owner string) (*topicEntry, error) {
	r.mu.RLock()
	entry, ok := r.entries[topicID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if entry.store.Topic().Owner != owner {
		return nil, ErrForbidden
	}
	return entry, nil
}

// noopCancel backs entries loaded from disk at start-up: they have no
// live goroutine to stop.
func noopCancel() {}

// LoadAll loads every persisted topic blob under dataDir back into
// memory (spec §4.6 "on process start-up loads every persisted blob back
// into memory"). A blob found with a non-terminal status indicates an
// unclean shutdown: there is no engine left to resume it, so it is
// reconciled the same way Shutdown reconciles a live topic, marked error,
// and re-persisted before being registered.
func (r *Registry) LoadAll(_ context.Context) error {
	files, err := afero.ReadDir(r.fs, r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: list snapshot dir: %w", err)
	}

	loaded := 0
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		path := filepath.Join(r.dataDir, f.Name())
		store, err := forum.Restore(r.fs, path, forum.SystemClock{})
		if err != nil {
			slog.Error("registry: failed to restore topic blob", "path", path, "error", err)
			continue
		}

		topic := store.Topic()
		if !topic.Status.IsTerminal() {
			reconcileInterrupted(store, "interrupted by process restart")
			if err := r.persist(store); err != nil {
				slog.Error("registry: failed to persist reconciled topic", "topic_id", topic.TopicID, "error", err)
			}
		}

		r.mu.Lock()
		r.entries[topic.TopicID] = &topicEntry{store: store, cancel: noopCancel}
		r.mu.Unlock()
		loaded++
	}
	slog.Info(fmt.Sprintf("registry: loaded %d historical topics", loaded), "count", loaded)
	return nil
}

// Shutdown marks every live topic error and persists all topics before
// returning (spec §4.6 "On process shutdown it marks live topics error
// and persists all topics"). Unlike CancelTopic, which yields status
// cancelled, a shutdown-interrupted topic is recorded as error since it
// was not a user-requested stop; the goroutine is also asked to stop via
// its context as a best-effort cleanup, but the status/persist decision
// here does not wait on it; the process exits shortly after this
// returns, so any later write from a still-unwinding goroutine is moot.
func (r *Registry) Shutdown(_ context.Context) {
	r.mu.RLock()
	entries := make([]*topicEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		topic := e.store.Topic()
		if !topic.Status.IsTerminal() {
			e.cancel()
			reconcileInterrupted(e.store, "service shut down")
		}
		if err := r.persist(e.store); err != nil {
			slog.Error("registry: failed to persist topic on shutdown", "topic_id", topic.TopicID, "error", err)
		}
	}
}

func reconcileInterrupted(store *forum.Store, conclusion string) {
	store.SetConclusion(conclusion)
	store.SetStatus(forum.StatusError)
	store.AppendTimeline(forum.EventError, "", conclusion)
}
