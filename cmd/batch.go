package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/logger"
	"github.com/spigell/resume-batch/internal/publisher"
	"github.com/spigell/resume-batch/internal/report"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptYes           = "Yes"
	PromptNo            = "No"
	PromptListDocuments = "List documents"
)

var prompt = promptui.Select{
	Label: "Procced?",
	Items: []string{PromptYes, PromptNo, PromptListDocuments},
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Process every resume in a directory and export the ranked results",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBatch(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntP("concurrency", "c", 0, "documents processed at once, 1-25 (default from config)")
	batchCmd.Flags().StringP("strategy", "s", "", "execution strategy: auto, pool or waves")
	batchCmd.Flags().StringP("job", "r", "", "job requirements text")
	batchCmd.Flags().String("job-file", "", "file with job requirements")
	batchCmd.Flags().StringP("output", "o", "output", "directory for the exported results")
	batchCmd.Flags().StringP("format", "f", "xlsx", "export format: xlsx or csv")
	batchCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before processing")

	viper.BindPFlag("batch.concurrency", batchCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("batch.strategy", batchCmd.Flags().Lookup("strategy"))
}

func runBatch(cmd *cobra.Command, dir string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the resume-batch", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	format, err := report.ParseFormat(cmd.Flag("format").Value.String())
	if err != nil {
		logger.Fatal("invalid export format", zap.Error(err))
	}

	strategy, err := batch.ParseStrategy(config.Batch.Strategy)
	if err != nil {
		logger.Fatal("invalid strategy", zap.Error(err))
	}

	job, err := resolveJob(cmd.Flag("job").Value.String(), cmd.Flag("job-file").Value.String(), config.JobRequirementsFile)
	if err != nil {
		logger.Fatal("loading job requirements", zap.Error(err))
	}

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err),
			zap.String("hint", "set GEMINI_API_KEY_FILE environment variable or the 'ai.gemini.api-key-file' key in the configuration file"),
		)
	}

	logger.Info("document filters",
		zap.Any("filters", document.Describe(p.resolver.Filters())),
		zap.Int64("max_size_bytes", config.Extract.MaxSize),
	)

	refs, err := p.resolver.Dir(ctx, dir)
	if err != nil {
		logger.Fatal("resolving documents", zap.Error(err))
	}

	if len(refs) == 0 {
		logger.Info("exiting", zap.String("reason", "no supported documents found"), zap.Strings("supported", document.SupportedExtensions()))
		return
	}

	if cmd.Flag("auto-aprove").Value.String() == "false" {
		if !confirm(refs, logger) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	manager := batch.NewManager(p.processor, logger, managerOptions(config, nil, logger)...)
	id, err := manager.Start(ctx, refs, batch.Options{
		Concurrency: config.Batch.Concurrency,
		Strategy:    strategy,
		Job:         job,
	})
	if err != nil {
		logger.Fatal("starting the batch", zap.Error(err))
	}

	pub := publisher.New(manager, config.Batch.PollInterval, logger)
	watchProgress(ctx, pub, id, logger)

	rep, err := manager.Wait(context.WithoutCancel(ctx), id)
	if err != nil {
		logger.Fatal("waiting for the batch", zap.Error(err))
	}

	summary := report.Summarize(rep.Results, rep.StartedAt, rep.FinishedAt)
	out := cmd.OutOrStdout()
	if err := report.WriteRanking(out, report.Order(rep.Results)); err != nil {
		logger.Warn("rendering ranking", zap.Error(err))
	}
	if err := report.WriteSummary(out, summary); err != nil {
		logger.Warn("rendering summary", zap.Error(err))
	}

	filename, err := writeExport(cmd.Flag("output").Value.String(), format, report.Export{
		BatchID:  rep.BatchID,
		Job:      rep.JobRequirements,
		Outcomes: rep.Results,
	})
	if err != nil {
		logger.Fatal("exporting results", zap.Error(err))
	}

	logger.Info("batch finished",
		zap.String("status", string(rep.Status)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.String("filename", filename),
	)
}

func confirm(refs []document.Ref, logger *zap.Logger) bool {
	for {
		logger.Info("documents ready for processing", zap.Int("count", len(refs)))

		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		switch action {
		case PromptYes:
			return true
		case PromptNo:
			return false
		case PromptListDocuments:
			for _, ref := range refs {
				logger.Info("document", zap.String("filename", ref.Name), zap.String("format", string(ref.Format)), zap.Int64("size", ref.Size))
			}
		}
	}
}

func watchProgress(ctx context.Context, pub *publisher.Publisher, id string, log *zap.Logger) {
	updates, err := pub.Subscribe(context.WithoutCancel(ctx), id)
	if err != nil {
		log.Warn("progress is unavailable", zap.Error(err))
		return
	}

	last := -1
	for state := range updates {
		if state.Completed == last && !state.Status.Terminal() {
			continue
		}
		last = state.Completed
		logger.WithBatch(log, id).Info("progress",
			zap.Int("completed", state.Completed),
			zap.Int("total", state.Total),
			zap.Float64("percentage", state.Percentage),
			zap.String("current_file", state.Current),
			zap.String("status", string(state.Status)),
		)
	}
}

func writeExport(dir string, format report.Format, e report.Export) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	filename := filepath.Join(dir, fmt.Sprintf("resume_batch_results_%s.%s", time.Now().Format("20060102_150405"), format))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}

	if err := report.Write(f, format, e); err != nil {
		f.Close()
		return "", err
	}
	return filename, f.Close()
}

// redacted returns a copy safe for debug logging.
func redacted(config *Config) Config {
	c := *config
	if config.AI != nil && config.AI.Gemini != nil && config.AI.Gemini.APIKey != "" {
		gemini := *config.AI.Gemini
		gemini.APIKey = "***"
		c.AI = &AIConfig{Gemini: &gemini}
	}
	return c
}
