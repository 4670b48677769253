package llm

import "context"

// StubClient is a deterministic test double: it always returns Response,
// or Err if set. Used by pkg/engine and pkg/agent tests and by the
// LLMBackendStub config option for running OASIS without AWS credentials.
type StubClient struct {
	Response string
	Err      error
	Calls    []StubCall
}

// StubCall records one Complete invocation for test assertions.
type StubCall struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Complete implements Client.
func (c *StubClient) Complete(_ context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	c.Calls = append(c.Calls, StubCall{Messages: messages, Temperature: temperature, MaxTokens: maxTokens})
	if c.Err != nil {
		return "", c.Err
	}
	return c.Response, nil
}
