package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-analyzer/internal/analysis"
)

const cliSidecarWait = 5 * time.Second

var textExtensions = []string{".txt", ".md", ".text"}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var modality string

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze one file and print the result envelope as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			m, err := resolveModality(modality, path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			logger := ctx.logger(cmd.ErrOrStderr())
			a, err := ctx.newAnalyzer(cmd.Context(), logger, nil, cliSidecarWait)
			if err != nil {
				return err
			}

			env := a.processor.Process(cmd.Context(), m, analysis.Blob{
				Data:     data,
				Filename: filepath.Base(path),
			})
			if err := writeJSON(cmd, env); err != nil {
				return err
			}
			if !env.Success {
				return errors.New(env.ErrorMessage())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modality, "modality", "m", "", "text, image, audio or video (inferred from the file extension when empty)")
	return cmd
}

// resolveModality honours an explicit flag, otherwise infers the modality
// from the file extension.
func resolveModality(flag, path string) (analysis.Modality, error) {
	if flag != "" {
		return analysis.ParseModality(flag)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if slices.Contains(textExtensions, ext) {
		return analysis.Text, nil
	}
	for _, m := range analysis.Modalities() {
		if slices.Contains(analysis.SupportedExtensions(m), ext) {
			return m, nil
		}
	}
	return "", fmt.Errorf("cannot infer modality from %q, pass --modality", filepath.Base(path))
}
