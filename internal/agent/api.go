package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAPIModel    = "claude-sonnet-4-20250514"
	defaultMaxRetries  = 3
	defaultBackoff     = 1 * time.Second
	maxAPIOutputTokens = 8192
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided,
// mirroring the teacher's haiku.go ErrAPIKeyRequired.
var ErrAPIKeyRequired = errors.New("ANTHROPIC_API_KEY required for API agent invocation")

// APIInvoker calls the Anthropic API directly instead of shelling out to a
// CLI, for deployments that prefer a direct model call over a subprocess.
// Retry/backoff texture grounded on the teacher's internal/compact/haiku.go.
type APIInvoker struct {
	client     anthropic.Client
	model      anthropic.Model
	maxRetries int
	backoff    time.Duration
	logger     *log.Logger
}

// NewAPIInvoker builds an APIInvoker. Env var ANTHROPIC_API_KEY takes
// precedence over an explicit apiKey argument.
func NewAPIInvoker(apiKey, model string, logger *log.Logger) (*APIInvoker, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if model == "" {
		model = defaultAPIModel
	}
	return &APIInvoker{
		client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:      anthropic.Model(model),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     logger,
	}, nil
}

// Invoke sends prompt as a single user message and reports success on any
// non-empty text response.
func (a *APIInvoker) Invoke(ctx context.Context, prompt string) (bool, error) {
	text, err := a.call(ctx, prompt)
	if err != nil || text == "" {
		return false, nil
	}
	return true, nil
}

// GenerateBriefing reuses the same retrying API call for L0 briefing text.
func (a *APIInvoker) GenerateBriefing(ctx context.Context, livingDocsContent string) (string, error) {
	text, err := a.call(ctx, briefingPromptPrefix+livingDocsContent)
	if err != nil {
		return "", nil
	}
	return text, nil
}

func (a *APIInvoker) call(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxAPIOutputTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			wait := a.backoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) > 0 && message.Content[0].Type == "text" {
				return message.Content[0].Text, nil
			}
			return "", fmt.Errorf("agent api: unexpected response shape")
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("agent api: non-retryable: %w", err)
		}
		if a.logger != nil {
			a.logger.Printf("agent api call failed (attempt %d/%d): %v", attempt+1, a.maxRetries+1, err)
		}
	}
	return "", fmt.Errorf("agent api: failed after %d attempts: %w", a.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
