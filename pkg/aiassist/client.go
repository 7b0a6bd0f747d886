// Package aiassist wraps the Anthropic API behind the two narrow operations
// this system consumes: fallback trade classification and market narrative
// generation. Both are black-box text completions; callers treat failures as
// non-fatal.
package aiassist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/forumkita/marketpulse/internal/model"
)

const (
	defaultClassifyModel  = "claude-haiku-4-5-20251001"
	defaultNarrativeModel = "claude-sonnet-4-5-20250929"

	classifyMaxTokens  = 256
	narrativeMaxTokens = 512
)

const classifySystemPrompt = `You classify forum marketplace posts. Posts mix Indonesian slang and English and use WTS (want to sell), WTB (want to buy), WTT (want to trade) conventions, including S>/B>/T> shorthand. Respond with a single JSON object and nothing else:
{"is_trade": <bool>, "intent": "WTS"|"WTB"|"WTT"|null, "display_price": "<price as written, or empty>", "normalized_price": <number or null>, "currency": "IDR"|"USD"|"UNKNOWN", "unit": "<unit if any>", "account_features": {"<feature>": true, ...}}
Prices like "50rb" mean 50000 IDR, "1.5jt" means 1500000 IDR. account_features only applies to game-account sales (e.g. maxed, rare_skin).`

const narrativeSystemPrompt = `You write short market summaries for forum trade threads. Given current (and optionally previous) market metrics as JSON, write 2-4 sentences in casual Indonesian-English forum register describing price levels, spread or value bands, and direction. No markdown, no preamble, just the summary text.`

// TradeClassification is the AI classifier's verdict on a post body.
type TradeClassification struct {
	IsTrade         bool            `json:"is_trade"`
	Intent          model.Intent    `json:"intent"`
	DisplayPrice    string          `json:"display_price"`
	NormalizedPrice *float64        `json:"normalized_price"`
	Currency        model.Currency  `json:"currency"`
	Unit            string          `json:"unit"`
	AccountFeatures map[string]bool `json:"account_features"`
}

// NarrativeInput carries the metrics the narrative generator describes.
type NarrativeInput struct {
	MarketType model.MarketType `json:"market_type"`
	Current    *model.Snapshot  `json:"current"`
	Previous   *model.Snapshot  `json:"previous,omitempty"`
}

// Client defines the AI operations used by the analyzer.
type Client interface {
	ClassifyTrade(ctx context.Context, body string) (*TradeClassification, error)
	Narrate(ctx context.Context, input NarrativeInput) (string, error)
}

// Option configures the client.
type Option func(*sdkClient)

// WithClassifyModel overrides the classification model.
func WithClassifyModel(m string) Option {
	return func(c *sdkClient) {
		c.classifyModel = m
	}
}

// WithNarrativeModel overrides the narrative model.
func WithNarrativeModel(m string) Option {
	return func(c *sdkClient) {
		c.narrativeModel = m
	}
}

type sdkClient struct {
	client         sdk.Client
	classifyModel  string
	narrativeModel string
}

// NewClient creates an Anthropic-backed aiassist client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey(apiKey),
		),
		classifyModel:  defaultClassifyModel,
		narrativeModel: defaultNarrativeModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *sdkClient) ClassifyTrade(ctx context.Context, body string) (*TradeClassification, error) {
	const bodyLimit = 2000
	if len(body) > bodyLimit {
		body = body[:bodyLimit]
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.classifyModel),
		MaxTokens: classifyMaxTokens,
		System:    []sdk.TextBlockParam{{Text: classifySystemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(body)),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "aiassist: classify trade")
	}

	var result TradeClassification
	if err := json.Unmarshal([]byte(cleanJSON(extractText(msg))), &result); err != nil {
		return nil, eris.Wrap(err, "aiassist: parse classification")
	}
	return &result, nil
}

func (c *sdkClient) Narrate(ctx context.Context, input NarrativeInput) (string, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return "", eris.Wrap(err, "aiassist: marshal narrative input")
	}

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.narrativeModel),
		MaxTokens: narrativeMaxTokens,
		System:    []sdk.TextBlockParam{{Text: narrativeSystemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(fmt.Sprintf("Market metrics:\n%s", payload))),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "aiassist: narrate")
	}

	text := strings.TrimSpace(extractText(msg))
	if text == "" {
		return "", eris.New("aiassist: empty narrative response")
	}
	return text, nil
}

func extractText(msg *sdk.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// cleanJSON strips markdown fences and surrounding prose so the response
// parses even when the model narrates around the object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
