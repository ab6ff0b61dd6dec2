package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldBatchID is the structured log field key for the batch identifier.
	FieldBatchID = "batch_id"
	// FieldDocument is the structured log field key for a document name.
	FieldDocument = "document"
	// FieldFormat is the structured log field key for a declared document format.
	FieldFormat = "format"
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger, defaulting to a no-op
// logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// AIFields returns fields describing the AI provider and model.
func AIFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// DocumentFields returns fields describing a single document.
func DocumentFields(name, format string) []zap.Field {
	return StringFields(
		StringField{Key: FieldDocument, Value: name},
		StringField{Key: FieldFormat, Value: format},
	)
}

// WithBatch scopes the logger to a batch.
func WithBatch(logger *zap.Logger, batchID string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldBatchID, Value: batchID})...)
}

// WithAI scopes the logger to an AI provider and model.
func WithAI(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, AIFields(provider, model)...)
}
