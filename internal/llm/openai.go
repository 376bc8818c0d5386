package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient implements Client against the OpenAI chat completions API,
// or any OpenAI-compatible endpoint via a base URL override.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. baseURL may be empty for the default
// endpoint.
func NewOpenAIClient(apiKey, model, baseURL string) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Model implements Client.
func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) buildRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.User,
	})

	out := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	return out
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Result, error) {
	if req.Stream {
		return c.stream(ctx, req), nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return Result{}, wrapModelError(err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, nil
	}

	return Result{Text: resp.Choices[0].Message.Content}, nil
}

func (c *OpenAIClient) stream(ctx context.Context, req Request) Result {
	chunks := make(chan string, 10)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		streamReq := c.buildRequest(req)
		streamReq.Stream = true

		stream, err := c.client.CreateChatCompletionStream(ctx, streamReq)
		if err != nil {
			errs <- wrapModelError(err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					errs <- wrapModelError(err)
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				select {
				case chunks <- delta:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return Result{Chunks: chunks, Errs: errs}
}
