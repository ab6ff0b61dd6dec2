package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDecodeConfigDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	config, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if config.Batch.Concurrency != 3 || config.Batch.MaxActive != 1 || config.Batch.Retain != 20 {
		t.Fatalf("unexpected batch defaults: %+v", config.Batch)
	}
	if config.Batch.PollInterval != 500*time.Millisecond {
		t.Fatalf("unexpected poll interval %v", config.Batch.PollInterval)
	}
	if config.AI.Gemini.Model != "gemini-2.5-flash-lite" || config.AI.Gemini.Timeout != time.Minute {
		t.Fatalf("unexpected gemini defaults: %+v", config.AI.Gemini)
	}
	if config.Callback.Timeout != 30*time.Second || config.Callback.URL != "" {
		t.Fatalf("unexpected callback defaults: %+v", config.Callback)
	}
}

func TestDecodeConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume-batch.yaml")
	content := `
ai:
  gemini:
    api-key-file: /run/secrets/gemini
    requests-per-second: 2.5
batch:
  concurrency: 12
  strategy: waves
  poll-interval: 1s
callback:
  url: http://backend/api/resume/result/ai
extract:
  max-size: 1048576
job-requirements-file: job.txt
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read config: %v", err)
	}

	config, err := decodeConfig(v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if config.Batch.Concurrency != 12 || config.Batch.Strategy != "waves" || config.Batch.PollInterval != time.Second {
		t.Fatalf("unexpected batch config: %+v", config.Batch)
	}
	if config.Batch.MaxActive != 1 {
		t.Fatalf("defaults must survive a partial config, got max-active %d", config.Batch.MaxActive)
	}
	if config.AI.Gemini.APIKeyFile != "/run/secrets/gemini" || config.AI.Gemini.RequestsPerSecond != 2.5 {
		t.Fatalf("unexpected gemini config: %+v", config.AI.Gemini)
	}
	if config.Extract.MaxSize != 1<<20 || config.JobRequirementsFile != "job.txt" {
		t.Fatalf("unexpected extract config: %+v", config.Extract)
	}
}

func TestResolveJob(t *testing.T) {
	dir := t.TempDir()
	flagFile := filepath.Join(dir, "flag.txt")
	configured := filepath.Join(dir, "configured.txt")
	_ = os.WriteFile(flagFile, []byte("  from flag file \n"), 0o600)
	_ = os.WriteFile(configured, []byte("from config"), 0o600)

	tests := []struct {
		name       string
		inline     string
		file       string
		configured string
		want       string
		wantErr    bool
	}{
		{name: "inline wins", inline: "inline", file: flagFile, configured: configured, want: "inline"},
		{name: "flag file", file: flagFile, configured: configured, want: "from flag file"},
		{name: "configured file", configured: configured, want: "from config"},
		{name: "nothing", want: ""},
		{name: "missing file", file: filepath.Join(dir, "nope.txt"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveJob(tt.inline, tt.file, tt.configured)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRedactedHidesAPIKey(t *testing.T) {
	config := &Config{AI: &AIConfig{Gemini: &GeminiConfig{APIKey: "secret", Model: "m"}}}

	out := redacted(config)
	if out.AI.Gemini.APIKey != "***" || out.AI.Gemini.Model != "m" {
		t.Fatalf("unexpected redacted config: %+v", out.AI.Gemini)
	}
	if config.AI.Gemini.APIKey != "secret" {
		t.Fatalf("redaction must not modify the original")
	}
}

func TestResolveAPIKeyHint(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	_, err := resolveAPIKey(&GeminiConfig{})
	if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY_FILE") {
		t.Fatalf("expected a configuration hint, got %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "from-env")
	key, err := resolveAPIKey(&GeminiConfig{})
	if err != nil || key != "from-env" {
		t.Fatalf("expected key from environment, got %q (%v)", key, err)
	}
}
