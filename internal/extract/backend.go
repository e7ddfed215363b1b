package extract

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enrichment/internal/cost"
	"github.com/sells-group/lead-enrichment/internal/resilience"
	"github.com/sells-group/lead-enrichment/pkg/anthropic"
	"github.com/sells-group/lead-enrichment/pkg/gemini"
)

// Request is one structured-extraction call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int64
	Temperature float64
}

// Response is the raw JSON object produced by the service. Cache token
// counts are reported separately from InputTokens.
type Response struct {
	JSON             json.RawMessage
	Model            string
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Usage converts the response token counts for the cost governor.
func (r *Response) Usage() cost.Usage {
	return cost.Usage{
		Input:      r.InputTokens,
		Output:     r.OutputTokens,
		CacheWrite: r.CacheWriteTokens,
		CacheRead:  r.CacheReadTokens,
	}
}

// Backend is a structured-output extraction service.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// AnthropicBackend forces a single tool call whose input schema is the
// extraction schema.
type AnthropicBackend struct {
	client anthropic.Client
}

// NewAnthropicBackend creates an AnthropicBackend.
func NewAnthropicBackend(client anthropic.Client) *AnthropicBackend {
	return &AnthropicBackend{client: client}
}

func (b *AnthropicBackend) Name() string { return "anthropic" }

func (b *AnthropicBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	props, required := jsonSchemaProperties()
	temp := req.Temperature
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      []anthropic.SystemBlock{{Text: req.System, CacheControl: &anthropic.CacheControl{}}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
		Tools: []anthropic.Tool{{
			Name:        ToolName,
			Description: "Record the facts extracted from the practice website.",
			InputSchema: props,
			Required:    required,
		}},
		ToolChoice: ToolName,
	})
	if err != nil {
		return nil, classifyAnthropic(err)
	}

	out := &Response{
		Model:            resp.Model,
		InputTokens:      resp.Usage.InputTokens,
		OutputTokens:     resp.Usage.OutputTokens,
		CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
		CacheReadTokens:  resp.Usage.CacheReadInputTokens,
	}
	in, ok := resp.ToolInput(ToolName)
	if !ok {
		return out, eris.Errorf("extract: response has no %s tool call (stop_reason %s)", ToolName, resp.StopReason)
	}
	out.JSON = in
	return out, nil
}

func classifyAnthropic(err error) error {
	if code := anthropic.StatusCode(err); code != 0 {
		if resilience.IsTransientHTTPStatus(code) {
			return resilience.NewTransientError(err, code)
		}
		return err
	}
	return err
}

// GeminiBackend requests JSON output constrained by a response schema.
type GeminiBackend struct {
	client gemini.Client
}

// NewGeminiBackend creates a GeminiBackend.
func NewGeminiBackend(client gemini.Client) *GeminiBackend {
	return &GeminiBackend{client: client}
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.client.GenerateJSON(ctx, gemini.Request{
		Model:           req.Model,
		System:          req.System,
		Prompt:          req.Prompt,
		Schema:          genaiSchema(),
		Temperature:     float32(req.Temperature),
		MaxOutputTokens: int32(req.MaxTokens),
	})
	if err != nil {
		return nil, err
	}
	out := &Response{
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}
	if resp.Text == "" {
		return out, eris.New("extract: empty gemini response")
	}
	out.JSON = json.RawMessage(resp.Text)
	return out, nil
}
