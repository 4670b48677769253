package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/cenkalti/backoff/v4"
)

// BedrockClient is the concrete LLM Client backed by AWS Bedrock's
// non-streaming Converse API, adapted from bitop-dev-agent's streaming
// ConverseStream-based provider to the blocking call this package's
// Client contract requires.
type BedrockClient struct {
	region  string
	profile string
	model   string
}

// NewBedrockClient constructs a BedrockClient. profile may be empty to use
// the default credential chain.
func NewBedrockClient(region, profile, model string) *BedrockClient {
	return &BedrockClient{region: region, profile: profile, model: model}
}

func (c *BedrockClient) newClient(ctx context.Context) (*bedrockruntime.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if c.region != "" {
		opts = append(opts, awsconfig.WithRegion(c.region))
	}
	if c.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: load aws config: %v", ErrLLMError, err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// Complete issues a single non-streaming Converse call and returns the
// assistant's text, retrying transient failures with exponential backoff
// (grounded on dotcommander-vybe's RetryWithBackoff shape).
func (c *BedrockClient) Complete(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	client, err := c.newClient(ctx)
	if err != nil {
		return "", err
	}

	input := buildConverseInput(c.model, messages, temperature, maxTokens)

	var text string
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 3 * time.Second
	b.MaxElapsedTime = 20 * time.Second

	err = backoff.Retry(func() error {
		resp, err := client.Converse(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrLLMError, ctx.Err()))
			}
			return fmt.Errorf("%w: %v", ErrLLMError, err)
		}

		out, ok := resp.Output.(*types.ConverseOutputMemberMessage)
		if !ok || len(out.Value.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: empty converse response", ErrLLMError))
		}
		block, ok := out.Value.Content[0].(*types.ContentBlockMemberText)
		if !ok {
			return backoff.Permanent(fmt.Errorf("%w: non-text converse response", ErrLLMError))
		}
		text = block.Value
		return nil
	}, backoff.WithContext(b, ctx))

	if err != nil {
		return "", err
	}
	return text, nil
}

func buildConverseInput(model string, messages []Message, temperature float64, maxTokens int) *bedrockruntime.ConverseInput {
	var system []types.SystemContentBlock
	var convMessages []types.Message

	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		convMessages = append(convMessages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	temp := float32(temperature)
	tokens := int32(maxTokens)

	return &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		System:   system,
		Messages: convMessages,
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: &temp,
			MaxTokens:   &tokens,
		},
	}
}
