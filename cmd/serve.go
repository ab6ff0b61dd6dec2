package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spigell/resume-batch/internal/batch"
	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/logger"
	"github.com/spigell/resume-batch/internal/metrics"
	"github.com/spigell/resume-batch/internal/publisher"
	"github.com/spigell/resume-batch/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the batch API over HTTP",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "listen address (default from config)")
	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
}

func serve() {
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

	logger.Info("starting the resume-batch server", zap.String("version", version))

	strategy, err := batch.ParseStrategy(config.Batch.Strategy)
	if err != nil {
		logger.Fatal("invalid strategy", zap.Error(err))
	}

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	logger.Info("document filters",
		zap.Any("filters", document.Describe(p.resolver.Filters())),
		zap.Int64("max_size_bytes", config.Extract.MaxSize),
	)

	collector := metrics.New()
	manager := batch.NewManager(p.processor, logger, managerOptions(config, collector, logger)...)

	srv := server.New(ctx, server.Deps{
		Manager:        manager,
		Publisher:      publisher.New(manager, config.Batch.PollInterval, logger),
		Resolver:       p.resolver,
		Processor:      p.processor,
		Scorer:         p.scorer,
		CriteriaScorer: p.scorer,
		Comparer:       p.comparer,
		Metrics:        collector.Handler(),
	}, server.Config{
		Listen:         config.Server.Listen,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxUploadBytes: config.Server.MaxUploadBytes,
		Concurrency:    config.Batch.Concurrency,
		Strategy:       strategy,
	}, logger)

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}

	// in-flight items finish even after shutdown was requested
	if err := manager.Shutdown(context.Background()); err != nil {
		logger.Warn("draining batches", zap.Error(err))
	}
	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}
