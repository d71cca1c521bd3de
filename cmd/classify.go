package cmd

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/tumorclassifier/inference"
	"github.com/nvr-ai/tumorclassifier/logger"
	"github.com/nvr-ai/tumorclassifier/util"
)

// FileResult is the classification of one file printed by the classify command.
type FileResult struct {
	File        string                 `json:"file"`
	DemoMode    bool                   `json:"demo_mode"`
	Predictions []inference.Prediction `json:"predictions,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func newClassifyCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:               "classify <file|dir>",
		Short:             "classify images from disk",
		Long:              `classify a single image, or every image of a directory, and print the predictions as JSON.`,
		Args:              cobra.ExactArgs(1),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			// Logs must not mix with the JSON on stdout.
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
			dispatcher := inference.Load(registry, cfg.Inference, log)
			defer closeDispatcher(dispatcher, log)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			failed := 0
			for _, f := range files {
				result := FileResult{File: f.Path, DemoMode: dispatcher.DemoMode()}
				outcomes, err := dispatcher.ClassifyFile(cmd.Context(), f.Path)
				if err != nil {
					failed++
					result.Error = err.Error()
				} else {
					result.Predictions = inference.Predictions(outcomes)
				}
				if err := enc.Encode(result); err != nil {
					return err
				}
			}

			if failed == len(files) {
				return errors.Errorf("no image could be classified in %s", args[0])
			}
			return nil
		},
	}
}

// collectFiles resolves a file or directory argument to the images to classify.
func collectFiles(path string, allowed []string) ([]util.ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if !util.AllowedFile(info.Name(), allowed) {
			return nil, errors.Errorf("unsupported file format: %s", info.Name())
		}
		return []util.ImageFile{{Path: path, Name: info.Name()}}, nil
	}

	files, err := util.LoadDirectoryImageFiles(path, allowed)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images found in %s", path)
	}
	return files, nil
}
