// Package summarizer builds the final conclusion of a topic from its
// top-voted posts (spec §4.5 "Summarization").
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/spf13/afero"

	"github.com/oasis-forum/oasis/pkg/forum"
	"github.com/oasis-forum/oasis/pkg/llm"
)

const (
	summaryTemperature = 0.2
	summaryMaxTokens   = 512
)

// Input carries everything the summary prompt needs.
type Input struct {
	Question   string
	TopPosts   []forum.Post
	TotalPosts int
	Rounds     int
}

// Summarizer produces a topic's final conclusion.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) (string, error)
}

// LLM summarizes by calling an llm.Client, preferring a user-configurable
// prompt template and falling back to a built-in one when the template
// file is absent or unusable, grounded on
// original_source/oasis/engine.py's module-level template load
// (open/read the configured path at startup, catch the not-found case,
// fall back to a built-in template string).
type LLM struct {
	client   llm.Client
	template *template.Template
}

// New constructs an LLM summarizer backed by client. templatePath, if
// non-empty, is read from fs and parsed as a text/template at
// construction time; a missing file, a read error, or a parse error all
// fall back to the built-in template, logged once and never treated as
// fatal (the original's "template not found, using built-in default"
// behavior).
func New(client llm.Client, fs afero.Fs, templatePath string) *LLM {
	return &LLM{client: client, template: loadTemplate(fs, templatePath)}
}

func loadTemplate(fs afero.Fs, path string) *template.Template {
	if path == "" {
		return nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		slog.Warn("summarizer: summary template not found, using built-in default", "path", path, "error", err)
		return nil
	}
	tpl, err := template.New("summary").Parse(strings.TrimSpace(string(data)))
	if err != nil {
		slog.Warn("summarizer: summary template failed to parse, using built-in default", "path", path, "error", err)
		return nil
	}
	slog.Info("summarizer: loaded summary template", "path", path)
	return tpl
}

// Summarize implements Summarizer.
func (s *LLM) Summarize(ctx context.Context, in Input) (string, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Summarize a multi-agent discussion into a short, decisive conclusion."},
		{Role: llm.RoleUser, Content: s.buildPrompt(in)},
	}
	text, err := s.client.Complete(ctx, messages, summaryTemperature, summaryMaxTokens)
	if err != nil {
		return "", err
	}
	return text, nil
}

// templateVars is the field set exposed to a configured summary
// template, named to match original_source/oasis/engine.py's
// _SUMMARY_PROMPT_TPL.format(question=..., post_count=..., round_count=...,
// posts_text=...) call.
type templateVars struct {
	Question   string
	PostCount  int
	RoundCount int
	PostsText  string
}

func (s *LLM) buildPrompt(in Input) string {
	if s.template == nil {
		return buildDefaultPrompt(in)
	}

	var b strings.Builder
	err := s.template.Execute(&b, templateVars{
		Question:   in.Question,
		PostCount:  in.TotalPosts,
		RoundCount: in.Rounds,
		PostsText:  renderTopPosts(in.TopPosts),
	})
	if err != nil {
		slog.Warn("summarizer: summary template execution failed, using built-in default", "error", err)
		return buildDefaultPrompt(in)
	}
	return b.String()
}

func renderTopPosts(posts []forum.Post) string {
	var b strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&b, "[↑%d ↓%d] %s: %s\n", p.Upvotes, p.Downvotes, p.Author, p.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildDefaultPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", in.Question)
	fmt.Fprintf(&b, "Total posts: %d, rounds consumed: %d\n\n", in.TotalPosts, in.Rounds)
	b.WriteString("Top-voted posts:\n")
	for _, p := range in.TopPosts {
		fmt.Fprintf(&b, "- [%s, score %+d] %s\n", p.Author, p.Score(), p.Content)
	}
	b.WriteString("\nWrite a concise conclusion for the question above, grounded in the top posts.")
	return b.String()
}
