package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	defaultModel         = "gemini-2.5-flash-lite"
	defaultMaxRetries    = 3
	defaultTimeout       = 60 * time.Second
	defaultRetryInterval = 2 * time.Second
	defaultMaxQuotaDelay = 30 * time.Second
)

var errEmptyResponse = errors.New("gemini api returned empty response")

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	chat, err := c.chats.Create(ctx, model, config, history)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// Config tunes the generator. Zero values select defaults.
type Config struct {
	APIKey string
	Model  string
	// MaxRetries is the total number of attempts per request.
	MaxRetries int
	// Timeout bounds every single attempt.
	Timeout time.Duration
	// RequestsPerSecond limits outgoing calls across all goroutines; zero disables the limit.
	RequestsPerSecond float64
	Burst             int
	// MaxQuotaDelay is the longest server-requested wait that is still retried.
	MaxQuotaDelay time.Duration
}

// Generator sends single-turn JSON requests to Gemini with bounded retries.
type Generator struct {
	chats         chatCreator
	model         string
	maxRetries    int
	timeout       time.Duration
	retryInterval time.Duration
	maxQuotaDelay time.Duration
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, cfg Config, logger *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newGenerator(genaiChats{chats: client.Chats}, cfg, logger), nil
}

func newGenerator(chats chatCreator, cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Generator{
		chats:         chats,
		model:         strings.TrimSpace(cfg.Model),
		maxRetries:    cfg.MaxRetries,
		timeout:       cfg.Timeout,
		retryInterval: defaultRetryInterval,
		maxQuotaDelay: cfg.MaxQuotaDelay,
		logger:        logger,
	}

	if g.model == "" {
		g.model = defaultModel
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.timeout <= 0 {
		g.timeout = defaultTimeout
	}
	if g.maxQuotaDelay <= 0 {
		g.maxQuotaDelay = defaultMaxQuotaDelay
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return g
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// GenerateContent sends message under the given system instruction and returns the textual answer.
// Transient failures are retried with jittered exponential backoff.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.chats == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	attempt := 0
	operation := func() (string, error) {
		attempt++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}

		output, err := g.send(ctx, config, message)
		if err != nil {
			return "", g.classify(ctx, err)
		}
		return output, nil
	}

	output, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(g.newBackOff()),
		backoff.WithMaxTries(uint(g.maxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logger.Warn("retrying gemini request",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", g.maxRetries),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generate content after %d attempt(s): %w", attempt, err)
	}

	return output, nil
}

func (g *Generator) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.retryInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	return b
}

func (g *Generator) send(ctx context.Context, config *genai.GenerateContentConfig, message string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	chat, err := g.chats.Create(callCtx, g.model, config, nil)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(callCtx, genai.Part{Text: message})
	if err != nil {
		return "", err
	}

	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errEmptyResponse
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", errEmptyResponse
	}

	return output, nil
}

// classify marks errors that must not be retried as permanent.
func (g *Generator) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(err)
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		// transport failures, per-attempt timeouts and empty answers are transient
		return err
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if delay, found := quotaDelay(apiErr.Message); found && delay > g.maxQuotaDelay {
			g.logger.Warn("gemini quota exhausted",
				zap.Duration("requested_delay", delay),
				zap.Duration("max_delay", g.maxQuotaDelay),
			)
			return backoff.Permanent(err)
		}
		return err
	case apiErr.Code >= http.StatusInternalServerError, apiErr.Code == http.StatusRequestTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

var retryDelayPattern = regexp.MustCompile(`(?i)retry(?:\s+after|\s+in)?\s+([0-9]+(?:\.[0-9]+)?)\s*(ms|s|sec|secs|seconds?)?\b`)

// quotaDelay reads a server-suggested wait such as "retry after 60 seconds" or "Please retry in 41.2s".
func quotaDelay(message string) (time.Duration, bool) {
	m := retryDelayPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	unit := time.Second
	if strings.EqualFold(m[2], "ms") {
		unit = time.Millisecond
	}
	return time.Duration(value * float64(unit)), true
}
