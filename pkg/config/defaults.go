package config

import "time"

// EngineDefaults contains the system-wide defaults applied to every topic
// unless the create_topic request overrides them.
type EngineDefaults struct {
	// MaxRounds is used when a create_topic call does not specify one.
	MaxRounds int `yaml:"max_rounds,omitempty" validate:"omitempty,min=1"`

	// EarlyStop enables the consensus early-stop check (spec §4.5).
	EarlyStop bool `yaml:"early_stop"`

	// DiscussionModeDefault is passed to registry.Defaults.DiscussionMode
	// and used when neither the create_topic request nor the schedule
	// YAML's `discussion` key sets the mode.
	DiscussionModeDefault bool `yaml:"discussion_mode_default"`

	// AgentTimeout bounds a single participate() call.
	AgentTimeout time.Duration `yaml:"agent_timeout,omitempty"`

	// SummaryTimeout bounds the final summarization call.
	SummaryTimeout time.Duration `yaml:"summary_timeout,omitempty"`

	// SummaryTemplatePath, if set, names a text/template file used to
	// render the summarization prompt in place of the built-in default
	// (spec §4.5, grounded on original_source/oasis/engine.py's
	// configurable oasis_summary.txt). A missing or malformed file falls
	// back to the built-in template rather than failing the topic.
	SummaryTemplatePath string `yaml:"summary_template_path,omitempty"`
}

// DefaultEngineDefaults returns the built-in defaults used when a value is
// not present in the user's YAML, mirroring the teacher's built-in-config
// idiom of always having a safe baseline.
func DefaultEngineDefaults() *EngineDefaults {
	return &EngineDefaults{
		MaxRounds:              5,
		EarlyStop:              true,
		DiscussionModeDefault:  true,
		AgentTimeout:           60 * time.Second,
		SummaryTimeout:         90 * time.Second,
	}
}

// BedrockConfig configures the AWS Bedrock-backed LLM client.
type BedrockConfig struct {
	Region      string `yaml:"region,omitempty"`
	Profile     string `yaml:"profile,omitempty"`
	Model       string `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// DefaultBedrockConfig returns the built-in Bedrock defaults.
func DefaultBedrockConfig() *BedrockConfig {
	return &BedrockConfig{
		Region:      "us-east-1",
		Model:       "anthropic.claude-3-5-sonnet-20241022-v2:0",
		Temperature: 0.7,
	}
}

// BotSessionConfig holds settings for a sibling bot-session collaborator
// (spec §6, oasis_session and regular_session variants). They are loaded
// and validated only: cmd/oasis wires the in-process botsession.Local,
// which reads neither BaseURL nor Timeout.
type BotSessionConfig struct {
	BaseURL string        `yaml:"base_url,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// DefaultBotSessionConfig returns the built-in bot-session defaults.
func DefaultBotSessionConfig() *BotSessionConfig {
	return &BotSessionConfig{
		BaseURL: "http://localhost:9100",
		Timeout: 90 * time.Second,
	}
}
