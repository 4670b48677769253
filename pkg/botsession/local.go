package botsession

import (
	"context"
	"fmt"
	"sync"

	"github.com/oasis-forum/oasis/pkg/llm"
)

// session holds one conversation's accumulated history, mirroring the
// append-only message log of bitop-dev-agent's pkg/session.Session,
// collapsed from a JSONL file per session to an in-memory slice per
// (owner, sessionID) pair since OASIS does not persist bot sessions
// itself (only the forum blob is persisted, per spec §6).
type session struct {
	mu       sync.Mutex
	messages []llm.Message
}

// Local is a reference bot-session collaborator backed by an LLM client.
// It is not part of the spec's core (the bot-session runtime is named as
// an opaque external dependency, spec §1) but gives OASIS something to
// call in tests and single-process deployments.
type Local struct {
	llm llm.Client

	mu       sync.Mutex
	sessions map[string]*session // key: owner + "\x00" + sessionID
}

// NewLocal constructs a Local bot-session collaborator backed by llmClient.
func NewLocal(llmClient llm.Client) *Local {
	return &Local{llm: llmClient, sessions: make(map[string]*session)}
}

func sessionKey(owner, sessionID string) string {
	return owner + "\x00" + sessionID
}

// Ask implements Client. The first call for a given (owner, sessionID)
// lazily creates the session and, if firstRoundPersona is non-empty,
// injects it as a system message (spec §4.4 "on the first call within a
// session the persona is injected as a system prompt").
func (l *Local) Ask(ctx context.Context, owner, sessionID, message, firstRoundPersona string) (string, error) {
	l.mu.Lock()
	key := sessionKey(owner, sessionID)
	sess, ok := l.sessions[key]
	if !ok {
		sess = &session{}
		if firstRoundPersona != "" {
			sess.messages = append(sess.messages, llm.Message{Role: llm.RoleSystem, Content: firstRoundPersona})
		}
		l.sessions[key] = sess
	}
	l.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.messages = append(sess.messages, llm.Message{Role: llm.RoleUser, Content: message})

	reply, err := l.llm.Complete(ctx, sess.messages, 0.7, 1024)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionError, err)
	}

	sess.messages = append(sess.messages, llm.Message{Role: llm.RoleAssistant, Content: reply})
	return reply, nil
}
