package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/moolen/faultline/internal/config"
	"github.com/moolen/faultline/internal/logging"
)

const systemPrompt = `You are an expert network operations AI. For each device in the
batch, judge whether its active alerts indicate a service outage (CRITICAL),
a condition where redundancy keeps the service running (WARNING), or normal
operation (NORMAL).

Judgment rules:
- As long as redundancy plausibly keeps the service up, do NOT answer CRITICAL.
- Answer CRITICAL only when a service outage is strongly indicated.
- Judge every device independently.

Output ONLY a JSON array, no markdown code fences, in this exact shape:
[
  {"device_id": "...", "status": "NORMAL|WARNING|CRITICAL", "reason": "...", "impact_type": "NONE|DEGRADED|REDUNDANCY_LOST|OUTAGE|UNKNOWN"}
]`

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	cfg    config.OracleConfig
	logger *logging.Logger
}

// NewAnthropicClient creates a client with an explicit API key. Callers
// resolve the credential (config or environment) before constructing.
func NewAnthropicClient(apiKey string, cfg config.OracleConfig) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		cfg:    cfg,
		logger: logging.GetLogger("oracle"),
	}
}

// Classify implements Client.Classify.
func (c *AnthropicClient) Classify(ctx context.Context, req Request) ([]DeviceVerdict, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Err: err}
	}

	c.logger.Debug("classifying batch of %d devices with %s", len(req.Devices), c.cfg.Model)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, classifyErr(err)
	}

	var text string
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			text += resp.Content[i].Text
		}
	}
	if text == "" {
		return nil, &Error{Kind: KindMalformed, Err: fmt.Errorf("empty response from %s", c.cfg.Model)}
	}

	verdicts, err := ParseVerdicts(text)
	if err != nil {
		return nil, &Error{Kind: KindMalformed, Err: err}
	}
	return verdicts, nil
}

// Name implements Client.Name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Model implements Client.Model.
func (c *AnthropicClient) Model() string {
	return c.cfg.Model
}

// BuildPrompt renders the user message for one batch. The device list is
// serialized as-is; callers are responsible for sanitizing messages and
// sorting devices so identical batches produce identical prompts.
func BuildPrompt(req Request) (string, error) {
	devices, err := json.MarshalIndent(req.Devices, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling device batch: %w", err)
	}
	return fmt.Sprintf("### Devices under judgment\n%s", devices), nil
}
