package summarizer

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasis-forum/oasis/pkg/forum"
	"github.com/oasis-forum/oasis/pkg/llm"
)

func sampleInput() Input {
	return Input{
		Question:   "what should we build?",
		TopPosts:   []forum.Post{{Author: "Creator", Content: "build X", Upvotes: 3, Downvotes: 1}},
		TotalPosts: 4,
		Rounds:     2,
	}
}

func TestSummarize_NoTemplatePathUsesBuiltInPrompt(t *testing.T) {
	stub := &llm.StubClient{Response: "conclusion"}
	s := New(stub, afero.NewMemMapFs(), "")

	text, err := s.Summarize(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, "conclusion", text)

	require.Len(t, stub.Calls, 1)
	prompt := stub.Calls[0].Messages[1].Content
	assert.Contains(t, prompt, "what should we build?")
	assert.Contains(t, prompt, "build X")
}

func TestSummarize_MissingTemplateFileFallsBackToBuiltIn(t *testing.T) {
	stub := &llm.StubClient{Response: "conclusion"}
	s := New(stub, afero.NewMemMapFs(), "/prompts/missing.txt")

	_, err := s.Summarize(context.Background(), sampleInput())
	require.NoError(t, err)

	prompt := stub.Calls[0].Messages[1].Content
	assert.Contains(t, prompt, "Write a concise conclusion")
}

func TestSummarize_ConfiguredTemplateIsUsedWhenPresent(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/prompts/oasis_summary.txt"
	require.NoError(t, afero.WriteFile(fs, path, []byte(
		"Q: {{.Question}} (posts={{.PostCount}}, rounds={{.RoundCount}})\n{{.PostsText}}",
	), 0o644))

	stub := &llm.StubClient{Response: "conclusion"}
	s := New(stub, fs, path)

	_, err := s.Summarize(context.Background(), sampleInput())
	require.NoError(t, err)

	prompt := stub.Calls[0].Messages[1].Content
	assert.Contains(t, prompt, "Q: what should we build? (posts=4, rounds=2)")
	assert.Contains(t, prompt, "Creator")
	assert.NotContains(t, prompt, "Write a concise conclusion")
}

func TestSummarize_MalformedTemplateFallsBackToBuiltIn(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/prompts/bad.txt"
	require.NoError(t, afero.WriteFile(fs, path, []byte("{{.Question"), 0o644))

	stub := &llm.StubClient{Response: "conclusion"}
	s := New(stub, fs, path)

	_, err := s.Summarize(context.Background(), sampleInput())
	require.NoError(t, err)

	prompt := stub.Calls[0].Messages[1].Content
	assert.Contains(t, prompt, "Write a concise conclusion")
}
