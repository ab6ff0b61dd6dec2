package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spigell/resume-batch/internal/ai/gemini"
	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/callback"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/extract"
	"github.com/spigell/resume-batch/internal/logger"
	"github.com/spigell/resume-batch/internal/processor"
	"github.com/spigell/resume-batch/internal/secrets"

	"go.uber.org/zap"
)

const providerGemini = "gemini"

// pipeline bundles the per-document collaborators shared by every command.
type pipeline struct {
	resolver  *document.Resolver
	extractor *extract.Registry
	parser    *gemini.Parser
	scorer    *gemini.Scorer
	comparer  *gemini.Comparer
	processor *processor.Processor
}

func newPipeline(ctx context.Context, config *Config, log *zap.Logger) (*pipeline, error) {
	apiKey, err := resolveAPIKey(config.AI.Gemini)
	if err != nil {
		return nil, err
	}

	gcfg := config.AI.Gemini
	aiLogger := logger.WithAI(log, providerGemini, gcfg.Model).With(zap.Int("ai_retry_attempts", gcfg.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:            apiKey,
		Model:             gcfg.Model,
		MaxRetries:        gcfg.MaxRetries,
		Timeout:           gcfg.Timeout,
		RequestsPerSecond: gcfg.RequestsPerSecond,
		Burst:             gcfg.Burst,
		MaxQuotaDelay:     gcfg.MaxQuotaDelay,
	}, aiLogger)
	if err != nil {
		return nil, fmt.Errorf("building gemini generator: %w", err)
	}

	parser, err := gemini.NewParser(generator, gcfg.MaxLogLength, aiLogger)
	if err != nil {
		return nil, fmt.Errorf("building field parser: %w", err)
	}
	scorer := gemini.NewScorer(generator, gcfg.MaxLogLength, aiLogger)
	comparer := gemini.NewComparer(generator, gcfg.MaxLogLength, aiLogger)

	extractor := extract.New(extract.Config{
		Pdftotext: config.Extract.Pdftotext,
		Antiword:  config.Extract.Antiword,
		MaxSize:   config.Extract.MaxSize,
	}, extract.ExecRunner{}, log)

	return &pipeline{
		resolver:  document.NewResolver(log),
		extractor: extractor,
		parser:    parser,
		scorer:    scorer,
		comparer:  comparer,
		processor: processor.New(extractor, parser, scorer, log, processor.Options{
			CallTimeout: config.Batch.CallTimeout,
		}),
	}, nil
}

func resolveAPIKey(cfg *GeminiConfig) (string, error) {
	key, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: cfg.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}
	return key, nil
}

func managerOptions(config *Config, observer batch.Observer, log *zap.Logger) []batch.ManagerOption {
	opts := []batch.ManagerOption{
		batch.WithMaxActive(config.Batch.MaxActive),
		batch.WithRetain(config.Batch.Retain),
	}
	if observer != nil {
		opts = append(opts, batch.WithObserver(observer))
	}
	if url := strings.TrimSpace(config.Callback.URL); url != "" {
		opts = append(opts, batch.WithFinishHook(callback.New(log, url, config.Callback.Timeout).Hook()))
	}
	return opts
}

// resolveJob prefers inline text, then a file from the flag, then the configured file.
func resolveJob(inline, file, configured string) (string, error) {
	if text := strings.TrimSpace(inline); text != "" {
		return text, nil
	}

	if strings.TrimSpace(file) == "" {
		file = configured
	}
	if strings.TrimSpace(file) == "" {
		return "", nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading job requirements: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
