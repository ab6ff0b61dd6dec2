package cmd

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "resume-batch"
)

type Config struct {
	AI                  *AIConfig       `mapstructure:"ai"`
	Batch               *BatchConfig    `mapstructure:"batch"`
	Server              *ServerConfig   `mapstructure:"server"`
	Callback            *CallbackConfig `mapstructure:"callback"`
	Extract             *ExtractConfig  `mapstructure:"extract"`
	JobRequirementsFile string          `mapstructure:"job-requirements-file"`
}

type AIConfig struct {
	Gemini *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey            string        `mapstructure:"api-key"`
	APIKeyFile        string        `mapstructure:"api-key-file"`
	Model             string        `mapstructure:"model"`
	MaxRetries        int           `mapstructure:"max-retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests-per-second"`
	Burst             int           `mapstructure:"burst"`
	MaxQuotaDelay     time.Duration `mapstructure:"max-quota-delay"`
	MaxLogLength      int           `mapstructure:"max-log-length"`
}

type BatchConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	Strategy     string        `mapstructure:"strategy"`
	MaxActive    int           `mapstructure:"max-active"`
	Retain       int           `mapstructure:"retain"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	CallTimeout  time.Duration `mapstructure:"call-timeout"`
}

type ServerConfig struct {
	Listen         string        `mapstructure:"listen"`
	ReadTimeout    time.Duration `mapstructure:"read-timeout"`
	WriteTimeout   time.Duration `mapstructure:"write-timeout"`
	MaxUploadBytes int64         `mapstructure:"max-upload-bytes"`
}

type CallbackConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ExtractConfig struct {
	Pdftotext string `mapstructure:"pdftotext"`
	Antiword  string `mapstructure:"antiword"`
	MaxSize   int64  `mapstructure:"max-size"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-batch extracts, scores and ranks resumes in bulk with Gemini",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	setDefaults(viper.GetViper())

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-batch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.gemini.model", "gemini-2.5-flash-lite")
	v.SetDefault("ai.gemini.max-retries", 3)
	v.SetDefault("ai.gemini.timeout", time.Minute)
	v.SetDefault("ai.gemini.max-quota-delay", 30*time.Second)
	v.SetDefault("ai.gemini.max-log-length", 200)

	v.SetDefault("batch.concurrency", 3)
	v.SetDefault("batch.strategy", "auto")
	v.SetDefault("batch.max-active", 1)
	v.SetDefault("batch.retain", 20)
	v.SetDefault("batch.poll-interval", 500*time.Millisecond)
	v.SetDefault("batch.call-timeout", 3*time.Minute)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read-timeout", 30*time.Second)
	v.SetDefault("server.max-upload-bytes", 64<<20)

	v.SetDefault("callback.timeout", 30*time.Second)

	v.SetDefault("extract.pdftotext", "pdftotext")
	v.SetDefault("extract.antiword", "antiword")
}

func initConfig() {
	// The version command works without any configuration.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Defaults are enough when no config file exists, but a broken one is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}

	if config == nil {
		config = &Config{}
	}
	if config.AI == nil {
		config.AI = &AIConfig{}
	}
	if config.AI.Gemini == nil {
		config.AI.Gemini = &GeminiConfig{}
	}
	if config.Batch == nil {
		config.Batch = &BatchConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}
	if config.Callback == nil {
		config.Callback = &CallbackConfig{}
	}
	if config.Extract == nil {
		config.Extract = &ExtractConfig{}
	}

	return config, nil
}
