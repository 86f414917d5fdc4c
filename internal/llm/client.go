package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

const defaultMaxRetries = 2

// Config selects the genkit provider/model the GenkitClient generates
// against, mirroring BrainConfig's provider switch
// (internal/engine/brain.go).
type Config struct {
	Provider string // "google" (default), "anthropic", "openai", "openai_compatible"
	Model    string
	APIKey   string
	Logger   *slog.Logger
}

// GenkitClient implements Client over firebase/genkit/go, the same LLM
// plumbing library internal/engine.Brain depends on, generalized from
// free-text chat (Brain.Respond) to a schema-validated Request/Result
// contract.
type GenkitClient struct {
	g          *genkit.Genkit
	modelName  string
	maxRetries int
	logger     *slog.Logger
}

// NewGenkitClient initializes the genkit runtime for the configured
// provider, mirroring GenkitBrain's provider-switched Init.
func NewGenkitClient(ctx context.Context, cfg Config) (*GenkitClient, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var g *genkit.Genkit
	var modelName string
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{APIKey: cfg.APIKey}))
		modelName = "anthropic/" + cfg.Model
	case "openai":
		g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{APIKey: cfg.APIKey}))
		modelName = "openai/" + cfg.Model
	case "", "google":
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: cfg.APIKey}), genkit.WithDefaultModel("googleai/"+cfg.Model))
		modelName = "googleai/" + cfg.Model
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	return &GenkitClient{g: g, modelName: modelName, maxRetries: defaultMaxRetries, logger: logger}, nil
}

// Run executes one phase-tagged, schema-validated generation, opening the
// requested tool bindings for the call's duration and releasing them on
// every exit path.
func (c *GenkitClient) Run(ctx context.Context, req Request) (Result, error) {
	defer func() {
		for _, tb := range req.Tools {
			if err := tb.Close(); err != nil {
				c.logger.Warn("tool binding close failed", "phase", req.Phase, "tool", tb.Name(), "error", err)
			}
		}
	}()

	validator, err := newSchemaValidator(req.Schema)
	if err != nil {
		return Result{}, fmt.Errorf("compile schema for phase %s: %w", req.Phase, err)
	}

	opts := genOptsFromMessages(c.modelName, req.Messages)

	var lastText string
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err != nil {
			return Result{}, fmt.Errorf("genkit generate phase %s: %w", req.Phase, err)
		}
		lastText = resp.Text()

		output, valErr := validator.extract(lastText)
		if valErr == nil {
			return Result{
				Output: output,
				Usage:  usageFromResponse(resp, lastText),
			}, nil
		}

		if attempt == c.maxRetries {
			return Result{}, fmt.Errorf("phase %s: %w", req.Phase, valErr)
		}

		retryPrompt := fmt.Sprintf(
			"Your response did not match the required JSON schema. Error: %s\n\n"+
				"Reply again with only JSON matching the schema.", valErr)
		opts = append(opts, ai.WithMessages(&ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(lastText)},
		}, &ai.Message{
			Role:    ai.RoleUser,
			Content: []*ai.Part{ai.NewTextPart(retryPrompt)},
		}))
	}
	return Result{}, fmt.Errorf("phase %s: validation failed after retries", req.Phase)
}

func genOptsFromMessages(modelName string, messages []Message) []ai.GenerateOption {
	opts := []ai.GenerateOption{ai.WithModelName(modelName)}

	var system strings.Builder
	var history []*ai.Message
	var lastUser string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		case RoleAssistant:
			history = append(history, &ai.Message{Role: ai.RoleModel, Content: []*ai.Part{ai.NewTextPart(m.Content)}})
		default:
			if lastUser != "" {
				history = append(history, &ai.Message{Role: ai.RoleUser, Content: []*ai.Part{ai.NewTextPart(lastUser)}})
			}
			lastUser = m.Content
		}
	}
	if system.Len() > 0 {
		opts = append(opts, ai.WithSystem(system.String()))
	}
	if len(history) > 0 {
		opts = append(opts, ai.WithMessages(history...))
	}
	opts = append(opts, ai.WithPrompt(lastUser))
	return opts
}
