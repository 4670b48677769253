package registry

import "errors"

// ErrNotFound is returned by any owner-scoped lookup for an unknown
// topic id (spec §6 "fails NotFound / Forbidden").
var ErrNotFound = errors.New("registry: topic not found")

// ErrForbidden is returned when a topic exists but owner does not match
// its recorded owner.
var ErrForbidden = errors.New("registry: owner does not match topic")

// ErrTimeout is returned by WaitConclusion when the topic has not reached
// a terminal status before the requested timeout elapses (spec §6
// "wait_conclusion(...) → conclusion | Timeout").
var ErrTimeout = errors.New("registry: wait_conclusion timed out")
