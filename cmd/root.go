package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mapmind",
	Short: "Map annotation and selection engine for area analysis",
	Long:  "Places a selection pin with a radius preview, sends the confirmed point for area analysis and annotates the map with the returned boundary, points of interest and popups.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
