package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapmind/internal/selection"
	"github.com/sells-group/mapmind/pkg/analysis"
)

var (
	analyzeLng    float64
	analyzeLat    float64
	analyzeRadius float64
	analyzeFormat string
	analyzeFull   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Request an area analysis for a point and print the overview",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}
		radius := analyzeRadius
		if radius == 0 {
			radius = cfg.Map.SelectionRadiusKm
		}

		start := time.Now()
		client := newAnalysisClient(cfg.Analysis)
		res, err := client.Analyze(cmd.Context(), selection.Request{Lng: analyzeLng, Lat: analyzeLat, RadiusKm: radius})
		if err != nil {
			zap.L().Error("analysis failed", zap.Error(err))
			return analysisFailure(err)
		}
		zap.L().Info("analysis complete",
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("pois", res.POIs.Total()),
		)

		if analyzeFull {
			return writeOutput(cmd.OutOrStdout(), res, analyzeFormat)
		}
		return writeOutput(cmd.OutOrStdout(), res.Overview(), analyzeFormat)
	},
}

func init() {
	analyzeCmd.Flags().Float64Var(&analyzeLng, "lng", 0, "longitude")
	analyzeCmd.Flags().Float64Var(&analyzeLat, "lat", 0, "latitude")
	analyzeCmd.Flags().Float64Var(&analyzeRadius, "radius", 0, "radius in km (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeFormat, "format", "json", "output format: json or yaml")
	analyzeCmd.Flags().BoolVar(&analyzeFull, "full", false, "print the full response instead of the overview")
	rootCmd.AddCommand(analyzeCmd)
}

type failureError struct {
	msg string
	err error
}

func (e *failureError) Error() string { return e.msg }

func (e *failureError) Unwrap() error { return e.err }

// analysisFailure keeps the user-facing message as the command error.
func analysisFailure(err error) error {
	return &failureError{msg: analysis.Message(err), err: err}
}
