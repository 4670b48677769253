// Package external implements the collaborator contract for the external
// OpenAI-compatible chat endpoints the `external` agent variant calls
// (spec §4.4, §6: complete(endpoint, headers, model, messages) -> text).
//
// Built on net/http rather than one of the pack's heavier multi-provider
// SDKs: the external variant needs a fully dynamic per-call
// endpoint/header/model triple resolved at schedule-resolution time, which
// those SDKs assume is fixed at client-construction time (see DESIGN.md).
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oasis-forum/oasis/pkg/llm"
)

// ErrExternalError wraps any network, HTTP-status, or parse failure
// talking to an external chat endpoint.
var ErrExternalError = errors.New("external chat error")

// Client calls an external OpenAI-compatible /chat/completions endpoint.
type Client struct {
	httpClient *http.Client
}

// New constructs a Client with the given request timeout.
func New(timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete posts messages to endpoint with the given model and headers,
// and returns the first choice's message content.
func (c *Client) Complete(ctx context.Context, endpoint string, headers map[string]string, model string, messages []llm.Message) (string, error) {
	body := chatRequest{Model: model}
	for _, m := range messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrExternalError, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrExternalError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalError, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrExternalError, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrExternalError, resp.StatusCode, string(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrExternalError, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrExternalError)
	}
	return parsed.Choices[0].Message.Content, nil
}
