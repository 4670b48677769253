// Package prompt builds the common prompt every agent variant sends to its
// backing LLM/session/external call, and parses the structured reply
// discussion mode asks for (spec §4.4). Grounded on
// bitop-dev-agent/pkg/tools/validate.go's compile-once-validate-per-call
// jsonschema/v6 idiom, adapted from tool-argument validation to
// discussion-reply validation.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/oasis-forum/oasis/pkg/forum"
	"github.com/oasis-forum/oasis/pkg/llm"
)

const replySchemaDoc = `{
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": {"type": "string"},
    "reply_to": {"type": "integer"},
    "votes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["post_id", "vote"],
        "properties": {
          "post_id": {"type": "integer"},
          "vote": {"type": "boolean"}
        }
      }
    }
  }
}`

var replySchema = compileReplySchema()

func compileReplySchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(replySchemaDoc)))
	if err != nil {
		panic(fmt.Sprintf("prompt: invalid built-in reply schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	const url = "mem://oasis/discussion-reply"
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("prompt: add reply schema resource: %v", err))
	}
	schema, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("prompt: compile reply schema: %v", err))
	}
	return schema
}

// Vote is one {post_id, vote} pair parsed from a structured reply.
type Vote struct {
	PostID int
	Up     bool
}

// Reply is the parsed form of an agent's raw text response.
type Reply struct {
	Content string
	ReplyTo *int
	Votes   []Vote
}

const discussionInstruction = `Respond with a single JSON object matching this shape: {"content": string, "reply_to": optional integer referencing an earlier post id, "votes": optional array of {"post_id": integer, "vote": boolean}}. "vote": true is an upvote, false is a downvote. Output only the JSON object, no surrounding text.`

// BuildMessages constructs the message list sent to the underlying
// LLM/session call: a system message carrying persona + mode instructions,
// and a user message carrying the question, the last posts, and the
// per-step instruction (spec §4.4 "Common prompt construction").
func BuildMessages(question string, recentPosts []forum.Post, stepInstruction, persona string, discussionMode bool) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: SystemInstruction(persona, discussionMode)},
		{Role: llm.RoleUser, Content: BuildUserContent(question, recentPosts, stepInstruction)},
	}
}

// SystemInstruction builds the system-message fragment: persona (if any)
// followed by the mode instruction, used as BuildMessages' system message.
// The session-based variants do not call it: they pass persona to the
// bot-session transport and prepend ModeInstruction to their message.
func SystemInstruction(persona string, discussionMode bool) string {
	var sys strings.Builder
	if persona != "" {
		sys.WriteString(persona)
		sys.WriteString("\n\n")
	}
	if discussionMode {
		sys.WriteString(discussionInstruction)
	} else {
		sys.WriteString("Respond with the task output as plain text only.")
	}
	return sys.String()
}

// ModeInstruction returns just the discussion/execution mode instruction,
// without persona framing — used by the session-based variants, which send
// persona only once via first_round_persona and must still repeat the mode
// instruction on every call.
func ModeInstruction(discussionMode bool) string {
	if discussionMode {
		return discussionInstruction
	}
	return "Respond with the task output as plain text only."
}

// BuildUserContent builds the question + recent posts + instruction body
// shared by every variant, independent of how persona/mode framing is
// delivered to the underlying transport.
func BuildUserContent(question string, recentPosts []forum.Post, stepInstruction string) string {
	var user strings.Builder
	fmt.Fprintf(&user, "Topic question: %s\n", question)
	if len(recentPosts) > 0 {
		user.WriteString("\nRecent posts:\n")
		for _, p := range recentPosts {
			fmt.Fprintf(&user, "[%d] %s (score %+d): %s\n", p.ID, p.Author, p.Score(), p.Content)
		}
	}
	if stepInstruction != "" {
		fmt.Fprintf(&user, "\nInstruction: %s\n", stepInstruction)
	}
	return user.String()
}

// ParseReply parses raw into a Reply. In execution mode (discussionMode
// false) the spec forbids reply_to/votes outright, so raw is always
// accepted verbatim as content. In discussion mode, raw is tried as JSON
// against the reply schema; a non-conforming response is accepted as plain
// content with no votes and no reply target (spec §4.4, §9 "LLM response
// parsing").
func ParseReply(raw string, discussionMode bool) Reply {
	if !discussionMode {
		return Reply{Content: raw}
	}

	candidate := extractJSONObject(raw)
	if candidate == "" {
		return Reply{Content: raw}
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(candidate))
	if err != nil {
		return Reply{Content: raw}
	}
	if err := replySchema.Validate(inst); err != nil {
		return Reply{Content: raw}
	}

	var parsed struct {
		Content string `json:"content"`
		ReplyTo *int   `json:"reply_to"`
		Votes   []struct {
			PostID int  `json:"post_id"`
			Vote   bool `json:"vote"`
		} `json:"votes"`
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return Reply{Content: raw}
	}

	reply := Reply{Content: parsed.Content, ReplyTo: parsed.ReplyTo}
	for _, v := range parsed.Votes {
		reply.Votes = append(reply.Votes, Vote{PostID: v.PostID, Up: v.Vote})
	}
	return reply
}

// extractJSONObject returns the substring of s from the first '{' to the
// last '}', or "" if there is no such pair. LLMs sometimes wrap JSON in
// prose or code fences; this tolerates that without a full parser.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
