package cmd

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/spigell/resume-batch/internal/document"
	"github.com/spigell/resume-batch/internal/logger"
	"github.com/spigell/resume-batch/internal/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Extract and score a single resume and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		parse(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringP("job", "r", "", "job requirements text")
	parseCmd.Flags().String("job-file", "", "file with job requirements")
}

func parse(cmd *cobra.Command, path string) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	job, err := resolveJob(cmd.Flag("job").Value.String(), cmd.Flag("job-file").Value.String(), config.JobRequirementsFile)
	if err != nil {
		logger.Fatal("loading job requirements", zap.Error(err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading the document", zap.Error(err))
	}

	p, err := newPipeline(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}

	refs := p.resolver.Uploads([]document.Upload{{Name: utils.BaseName(path), Data: data}})
	if len(refs) == 0 {
		logger.Fatal("unsupported or empty document",
			zap.String("filename", path),
			zap.Strings("supported", document.SupportedExtensions()),
		)
	}

	outcome := p.processor.Process(ctx, refs[0], job)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcome); err != nil {
		logger.Fatal("writing the result", zap.Error(err))
	}
}
