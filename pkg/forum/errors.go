package forum

import "errors"

// ErrForumClosed is returned by Publish when the topic has already reached
// a terminal status (spec §4.3, §7). Indicates a programming error, not
// user input: callers are expected not to publish after conclusion.
var ErrForumClosed = errors.New("forum closed")

// ErrInvalidReplyTo is returned by Publish when reply_to does not name an
// existing, strictly earlier post id (spec §3 invariant, scenario 4).
var ErrInvalidReplyTo = errors.New("reply_to does not reference an existing earlier post")
