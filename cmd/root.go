// Package cmd - Command line entry points of the tumor classifier.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nvr-ai/tumorclassifier/config"
	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/logger"
	"github.com/nvr-ai/tumorclassifier/metrics"
	"github.com/nvr-ai/tumorclassifier/server"
	"github.com/nvr-ai/tumorclassifier/version"
)

var rootDescription = `
tumorclassifier serves a web page and a JSON API that classify brain MRI
scans into glioma, meningioma, pituitary tumor or no tumor.

Every upload is run through four ONNX models: IDTNet, VGG16, DenseNet121
and InceptionV1. When the model artifacts or the ONNX Runtime library
cannot be loaded the service keeps running in demo mode and answers with
fixed results.
`

// rootOptions is shared by the root command and its children.
type rootOptions struct {
	v          *viper.Viper
	configFile string
}

// loadConfig reads the configuration file, the environment and the bound flags.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	return config.Load(o.v, o.configFile)
}

// NewRootCommand creates the command tree with a fresh viper instance.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:               "tumorclassifier",
		Short:             "brain tumor classification service",
		Long:              rootDescription,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	// Bind common flags.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&o.configFile, "config", "c", "", "path of the YAML configuration file")
	flags.Bool("verbose", false, "print debug logs")
	flags.Bool("console", false, "log to stderr instead of files")
	flags.Bool("demo", false, "serve fixed demo results without loading models")
	flags.String("models-dir", "", "directory holding the ONNX model artifacts")
	flags.String("addr", "", "listen address of the HTTP server")

	for key, name := range map[string]string{
		"log.verbose":          "verbose",
		"log.console":          "console",
		"inference.demo":       "demo",
		"inference.models_dir": "models-dir",
		"server.addr":          "addr",
	} {
		if err := o.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	// Add sub command.
	rootCmd.AddCommand(newClassifyCommand(o))
	rootCmd.AddCommand(newModelsCommand(o))
	rootCmd.AddCommand(newBenchmarkCommand(o))
	rootCmd.AddCommand(newConfigCommand(o))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	defer func() { _ = log.Sync() }()

	log.Infow("Starting tumor classifier", "version", version.Info())

	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	m := metrics.New()
	dispatcher := inference.Load(registry, cfg.Inference, log, inference.WithObserver(m))
	defer closeDispatcher(dispatcher, log)

	srv, err := server.New(cfg, dispatcher, m, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func closeDispatcher(d *inference.Dispatcher, log *zap.SugaredLogger) {
	if err := d.Close(); err != nil {
		log.Warnw("Failed to release models", "error", err)
	}
}
