package gemini

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spigell/resume-batch/internal/ai"
	"github.com/spigell/resume-batch/internal/utils"
	"go.uber.org/zap"
)

//go:embed prompts/extract.md
var extractPrompt string

//go:embed prompts/parsed_resume.schema.json
var parsedResumeSchema []byte

const parsedResumeSchemaURL = "parsed_resume.schema.json"

// Parser extracts structured resume fields with Gemini.
type Parser struct {
	generator contentGenerator
	schema    *jsonschema.Schema
	logger    *zap.Logger
	maxLogLen int
}

// NewParser compiles the response schema and returns a ready parser.
func NewParser(generator contentGenerator, maxLogLength int, logger *zap.Logger) (*Parser, error) {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	return &Parser{
		generator: generator,
		schema:    schema,
		logger:    logger,
		maxLogLen: maxLogLength,
	}, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(parsedResumeSchemaURL, bytes.NewReader(parsedResumeSchema)); err != nil {
		return nil, fmt.Errorf("add parsed resume schema: %w", err)
	}
	schema, err := compiler.Compile(parsedResumeSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile parsed resume schema: %w", err)
	}
	return schema, nil
}

// ExtractFields implements ai.FieldExtractor. Every failure wraps ai.ErrParse.
func (p *Parser) ExtractFields(ctx context.Context, text string) (ai.ParsedResume, error) {
	message := "Resume content:\n" + text

	p.logger.Debug("gemini parse request",
		zap.Int("text_length", utf8.RuneCountInString(text)),
		zap.String("text_preview", utils.TruncateForLog(text, p.maxLogLen)),
	)

	raw, err := p.generator.GenerateContent(ctx, extractPrompt, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrParse, err)
	}

	p.logger.Debug("gemini parse response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, p.maxLogLen)),
	)

	data, err := decodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrParse, err)
	}

	if err := p.schema.Validate(any(data)); err != nil {
		return nil, fmt.Errorf("%w: response does not match schema: %v", ai.ErrParse, err)
	}

	return ai.ParsedResume(data).Normalize(), nil
}
