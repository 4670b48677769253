// Package botsession defines the collaborator contract OASIS uses to
// reach the sibling "bot session" runtime addressed by oasis_session and
// regular_session agent handles (spec §4.4, §6). The LLM and the process
// that stores bot sessions are both opaque external dependencies per
// spec §1; Client is the contract, Local is a reference implementation
// used for tests and single-process deployments.
package botsession

import (
	"context"
	"errors"
)

// ErrSessionError wraps a failure reaching the bot-session collaborator
// (spec §6, §7).
var ErrSessionError = errors.New("session error")

// Client is the collaborator surface: ask(owner, session_id, message,
// first_round_persona?) -> text, with lazy session creation (spec §6).
type Client interface {
	Ask(ctx context.Context, owner, sessionID, message, firstRoundPersona string) (string, error)
}
