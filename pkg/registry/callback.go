package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oasis-forum/oasis/pkg/forum"
)

const callbackTimeout = 10 * time.Second

// callbackBody is the completion-callback POST payload, grounded on
// original_source/oasis/server.py's _run_discussion: a three-field
// {user_id, text, session_id} body, translated to an English
// notification text per spec §4.5 rather than the source's Chinese
// template.
type callbackBody struct {
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
}

// Callback fires the completion notification named in spec §6 ("If
// supplied at create_topic, the engine POSTs a short notification...").
// Built on net/http directly: this is a single fire-and-forget POST of a
// three-field JSON body, the same one-off-call shape the teacher itself
// uses plain net/http for (e.g. pkg/runbook/github.go) rather than
// reaching for one of the pack's heavier HTTP client libraries.
type Callback struct {
	httpClient  *http.Client
	authHeader  string
	authValue   string
	sessionName string
}

// NewCallback constructs a Callback. authHeader/authValue are sent on
// every request when both are non-empty (spec §6's "configurable auth
// header", grounded on the source's X-Internal-Token header).
// sessionName is the fixed session_id sent in every callback body,
// mirroring the source's "default" fallback when the caller supplies
// none.
func NewCallback(authHeader, authValue, sessionName string) *Callback {
	if sessionName == "" {
		sessionName = "default"
	}
	return &Callback{
		httpClient:  &http.Client{Timeout: callbackTimeout},
		authHeader:  authHeader,
		authValue:   authValue,
		sessionName: sessionName,
	}
}

// Notify POSTs the completion notification to url. Failure is logged
// only and never affects topic status (spec §6, §7 "Failures of the
// completion callback are logged only").
func (c *Callback) Notify(ctx context.Context, url string, topic forum.Topic) {
	text := fmt.Sprintf(
		"[OASIS topic complete]\nTopic ID: %s\nStatus: %s\nQuestion: %s\n\nConclusion:\n%s",
		topic.TopicID, topic.Status, topic.Question, topic.Conclusion,
	)
	body := callbackBody{UserID: topic.Owner, Text: text, SessionID: c.sessionName}

	payload, err := json.Marshal(body)
	if err != nil {
		slog.Error("registry: failed to build callback payload", "topic_id", topic.TopicID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		slog.Error("registry: failed to build callback request", "topic_id", topic.TopicID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" && c.authValue != "" {
		req.Header.Set(c.authHeader, c.authValue)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("registry: completion callback failed", "topic_id", topic.TopicID, "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Warn("registry: completion callback rejected", "topic_id", topic.TopicID, "url", url, "status", resp.StatusCode)
		return
	}
	slog.Info("registry: completion callback delivered", "topic_id", topic.TopicID, "url", url)
}
