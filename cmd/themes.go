package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "Preview theme discovery over the stored window",
	Long:  "Runs theme discovery against the reviews already in the store and prints the themes without persisting them. Useful for tuning before a full run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := requireLLMKey(); err != nil {
			return err
		}

		env, err := initPipeline(ctx, false)
		if err != nil {
			return eris.Wrap(err, "themes: init pipeline")
		}
		defer env.Close()

		themes, fellBack, err := env.Pipeline.PreviewThemes(ctx)
		if err != nil {
			return eris.Wrap(err, "themes: discover")
		}

		if fellBack {
			zap.L().Warn("discovery fell back to the default theme set")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(themes)
	},
}

func init() {
	rootCmd.AddCommand(themesCmd)
}
