package llm

import (
	"context"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a client for the given API key and model.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  model,
	}
}

// Model implements Client.
func (c *AnthropicClient) Model() string {
	return c.model
}

func (c *AnthropicClient) buildRequest(req Request) anthropic.MessagesRequest {
	maxTokens := 4096
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	out := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.User)},
			},
		},
		MaxTokens: maxTokens,
	}

	if req.System != "" {
		out.MultiSystem = []anthropic.MessageSystemPart{
			{Type: "text", Text: req.System},
		}
	}

	return out
}

// Generate implements Client.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (Result, error) {
	if req.Stream {
		return c.stream(ctx, req), nil
	}

	resp, err := c.client.CreateMessages(ctx, c.buildRequest(req))
	if err != nil {
		return Result{}, wrapModelError(err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text += *block.Text
		}
	}

	return Result{Text: text}, nil
}

// stream adapts the SDK's callback-based streaming to channels.
func (c *AnthropicClient) stream(ctx context.Context, req Request) Result {
	chunks := make(chan string, 10)
	// Both OnError and the stream call's return can report a failure.
	errs := make(chan error, 2)

	go func() {
		defer close(chunks)
		defer close(errs)

		streamReq := anthropic.MessagesStreamRequest{
			MessagesRequest: c.buildRequest(req),
		}

		streamReq.OnError = func(errResp anthropic.ErrorResponse) {
			errs <- fmt.Errorf("anthropic streaming error: %s", errResp.Error.Message)
		}

		streamReq.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				select {
				case chunks <- *delta.Delta.Text:
				case <-ctx.Done():
				}
			}
		}

		if _, err := c.client.CreateMessagesStream(ctx, streamReq); err != nil {
			errs <- wrapModelError(err)
		}
	}()

	return Result{Chunks: chunks, Errs: errs}
}
