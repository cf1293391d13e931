package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Client wraps the OpenAI API client with rate limiting and retries
type Client struct {
	client     *openai.Client
	limiter    *rate.Limiter
	model      string
	timeout    time.Duration
	maxRetries uint64
	logger     zerolog.Logger
}

// NewClient creates a new OpenAI client
func NewClient(apiKey, model string, timeout time.Duration, maxRetries int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		client:     openai.NewClient(apiKey),
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5), // 5 requests per second
		model:      model,
		timeout:    timeout,
		maxRetries: uint64(maxRetries),
		logger:     log.With().Str("component", "openai_client").Logger(),
	}
}

// Complete sends a prompt to OpenAI and returns the completion text.
// Each attempt carries its own timeout; failed attempts are retried with
// exponential backoff up to the configured limit.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	c.logger.Debug().Int("prompt_len", len(prompt)).Msg("Sending prompt to OpenAI")

	var content string
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(
			attemptCtx,
			openai.ChatCompletionRequest{
				Model:       c.model,
				Temperature: 0.1,
				Messages: []openai.ChatCompletionMessage{
					{
						Role:    openai.ChatMessageRoleUser,
						Content: prompt,
					},
				},
			},
		)
		if err != nil {
			return fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty choices in response")
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	backoffStrategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries),
		ctx,
	)

	if err := backoff.Retry(operation, backoffStrategy); err != nil {
		c.logger.Error().Err(err).Msg("OpenAI API error")
		return "", fmt.Errorf("after retries: %w", err)
	}

	return content, nil
}
