package llmquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/codalotl/coderewrite/internal/q/health"
)

// DefaultModel is used when neither OpenAIConfig nor Options name a model.
const DefaultModel = "gpt-4.1-mini"

// OpenAIConfig configures NewOpenAI.
type OpenAIConfig struct {
	APIKey    string // takes precedence over APIKeyEnv
	APIKeyEnv string // env var holding the key (optional leading $); OPENAI_API_KEY if empty
	BaseURL   string // optional; any OpenAI-compatible endpoint
	Model     string // default model
	Logger    *slog.Logger
}

// OpenAI queries an OpenAI-compatible chat completions endpoint. Transient failures (429, 5xx, network errors) are retried with backoff.
type OpenAI struct {
	health.Ctx
	client openai.Client
	model  string
	sleeps []time.Duration
}

var _ Querier = (*OpenAI)(nil)

func getEnvWithPossibleDollar(key string) string {
	envVar := strings.TrimPrefix(key, "$")
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}

// NewOpenAI returns an OpenAI querier. It fails if no API key can be resolved.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" && cfg.APIKeyEnv != "" {
		apiKey = getEnvWithPossibleDollar(cfg.APIKeyEnv)
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, health.NewKindErr(health.KindConfig, "no API key", "env", cfg.APIKeyEnv)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{
		Ctx:    health.NewCtx(logger),
		client: openai.NewClient(opts...),
		model:  model,
		sleeps: retrySleepDurations,
	}, nil
}

// Query sends prompt as a single user message (after opts.System, if set) and returns the assistant's text.
func (o *OpenAI) Query(ctx context.Context, prompt string, opts Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = o.model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if len(opts.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopSequences}
	}

	o.Log("llmquery.request", "model", model, "bytes", len(prompt))
	start := time.Now()
	text, err := withRetry(ctx, o.Ctx, o.sleeps, func(ctx context.Context) (string, error) {
		return o.send(ctx, params)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if health.KindOf(err) != health.KindNone {
			return "", o.LogWrappedErr("llmquery.query", err, "model", model)
		}
		return "", o.LogKindErr(health.KindProvider, "llmquery.query", err, "model", model)
	}
	o.Log("llmquery.response", "model", model, "bytes", len(text), "elapsed", time.Since(start))
	return text, nil
}

func (o *OpenAI) send(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == 429 || (apiErr.StatusCode >= 500 && apiErr.StatusCode <= 599) {
				return "", makeRetryable(err)
			}
			return "", err
		}
		var netErr net.Error
		if errors.As(err, &netErr) && ctx.Err() == nil {
			return "", makeRetryable(err)
		}
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("chat completion response is nil")
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}

	choice := resp.Choices[0]
	o.Log("llmquery.usage", "id", resp.ID, "finish", choice.FinishReason, "in", resp.Usage.PromptTokens, "out", resp.Usage.CompletionTokens)
	if choice.Message.Content == "" && choice.Message.Refusal != "" {
		return "", health.NewKindErr(health.KindValidation, "model refused the request", "refusal", choice.Message.Refusal)
	}
	return choice.Message.Content, nil
}
