package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/tumorclassifier/benchmark"
	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/logger"
)

type benchmarkOptions struct {
	iterations int
	warmup     int
	outputDir  string
}

func newBenchmarkCommand(o *rootOptions) *cobra.Command {
	bo := &benchmarkOptions{}

	cmd := &cobra.Command{
		Use:               "benchmark <file|dir>",
		Short:             "measure classification latency",
		Long:              `classify the given images repeatedly and report per-model latency.`,
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bo.iterations <= 0 {
				return errors.New("iterations must be positive")
			}

			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			cfg.Log.Console = true

			log, err := logger.New(cfg.Log)
			if err != nil {
				return errors.Wrap(err, "init logger")
			}
			defer func() { _ = log.Sync() }()

			files, err := collectFiles(args[0], cfg.Upload.AllowedExtensions)
			if err != nil {
				return err
			}

			registry, err := cfg.Registry()
			if err != nil {
				return err
			}

			rec := benchmark.NewRecorder()
			dispatcher := inference.Load(registry, cfg.Inference, log, inference.WithObserver(rec))
			defer closeDispatcher(dispatcher, log)

			suite := benchmark.NewSuite(benchmark.NewSuiteArgs{
				Dispatcher: dispatcher,
				Recorder:   rec,
				OutputDir:  bo.outputDir,
				Logger:     log,
			})
			suite.SetCorpus(files)
			suite.AddScenario(benchmark.NewScenarioBuilder("benchmark").
				WithIterations(bo.iterations).
				WithWarmupRuns(bo.warmup).
				Build())

			if err := suite.RunAllScenarios(cmd.Context()); err != nil {
				return err
			}

			results := suite.GetResults()
			if len(results) == 0 {
				return errors.New("benchmark produced no results")
			}
			benchmark.WriteSummaryTable(cmd.OutOrStdout(), results)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&bo.iterations, "iterations", "n", 20, "measured classifications")
	flags.IntVar(&bo.warmup, "warmup", 2, "classifications run before measuring")
	flags.StringVarP(&bo.outputDir, "output", "o", "", "directory for JSON and CSV results, empty to skip")

	return cmd
}
