// Package llm invokes hosted completion models through langchaingo.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/tunechat/internal/config"
	"github.com/raphaelgruber/tunechat/internal/metrics"
	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Options tune every completion request issued by an Invoker.
type Options struct {
	DefaultModel string
	Temperature  float64
	MaxTokens    int // 0 leaves the provider default
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// Invoker issues single synchronous completion requests.
type Invoker struct {
	llm  llms.Model
	opts Options
}

// NewModel creates the langchaingo backend selected by configuration.
func NewModel(cfg config.Config) (llms.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required (set OPENAI_API_KEY)")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.ChatModel),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	case config.ProviderOllama:
		model, err := ollama.New(
			ollama.WithModel(cfg.ChatModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required (set ANTHROPIC_API_KEY)")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.ChatModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil

	case config.ProviderBedrock:
		var awsOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		model, err := bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.ChatModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// NewInvoker creates an Invoker for the configured provider.
func NewInvoker(cfg config.Config, collector *metrics.Collector, logger *slog.Logger) (*Invoker, error) {
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return NewInvokerWithModel(model, Options{
		DefaultModel: cfg.ChatModel,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Metrics:      collector,
		Logger:       logger,
	}), nil
}

// NewInvokerWithModel wraps an existing langchaingo model.
func NewInvokerWithModel(model llms.Model, opts Options) *Invoker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Invoker{llm: model, opts: opts}
}

// DefaultModel returns the model used when Complete is called with "".
func (i *Invoker) DefaultModel() string {
	return i.opts.DefaultModel
}

// Complete sends turns to model and returns the first choice's text.
// Failures are returned as *models.ServiceError.
func (i *Invoker) Complete(ctx context.Context, model string, turns []models.Turn) (string, error) {
	if model == "" {
		model = i.opts.DefaultModel
	}

	callOpts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(i.opts.Temperature),
	}
	if i.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(i.opts.MaxTokens))
	}

	i.opts.Logger.Debug("sending completion", "model", model, "turns", len(turns))

	start := time.Now()
	resp, err := i.llm.GenerateContent(ctx, toMessages(turns), callOpts...)
	duration := time.Since(start)

	if err != nil {
		i.opts.Metrics.RecordLLMUsage(metrics.OpCompletion, duration, 0, 0, err)
		wrapped := wrapError("completion", err)
		if isFatalAPIError(wrapped) {
			i.opts.Logger.Error("completion rejected, check credentials or quota", "model", model, "error", err)
		} else {
			i.opts.Logger.Warn("completion failed", "model", model, "duration_ms", duration.Milliseconds(), "error", err)
		}
		return "", wrapped
	}

	if resp == nil || len(resp.Choices) == 0 {
		err := &models.ServiceError{Op: "completion", Message: "no response choices"}
		i.opts.Metrics.RecordLLMUsage(metrics.OpCompletion, duration, 0, 0, err)
		return "", err
	}

	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	i.opts.Metrics.RecordLLMUsage(metrics.OpCompletion, duration, in, out, nil)
	i.opts.Logger.Debug("completion done",
		"model", model,
		"duration_ms", duration.Milliseconds(),
		"input_tokens", in,
		"output_tokens", out,
	)

	return choice.Content, nil
}

// toMessages converts turns to langchaingo messages, preserving order.
func toMessages(turns []models.Turn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, llms.TextParts(messageType(t.Role), t.Content))
	}
	return messages
}

func messageType(role models.Role) llms.ChatMessageType {
	switch role {
	case models.RoleAssistant:
		return llms.ChatMessageTypeAI
	case models.RoleSystem:
		return llms.ChatMessageTypeSystem
	default:
		return llms.ChatMessageTypeHuman
	}
}

// tokenUsage reads provider-specific token counters from generation info.
func tokenUsage(info map[string]any) (int64, int64) {
	in := firstInt(info, "PromptTokens", "InputTokens")
	out := firstInt(info, "CompletionTokens", "OutputTokens")
	return in, out
}

func firstInt(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
