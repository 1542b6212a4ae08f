package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/mapmind/internal/annotate"
	"github.com/sells-group/mapmind/internal/mapengine"
	"github.com/sells-group/mapmind/internal/model"
)

var (
	renderFile   string
	renderFormat string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render an analysis response into map surface state",
	Long:  "Reads an analysis response (JSON, from --file or stdin), applies it to an in-memory map surface and prints the resulting sources, layers, markers and camera.",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if renderFile != "" && renderFile != "-" {
			f, err := os.Open(renderFile)
			if err != nil {
				return eris.Wrap(err, "open input")
			}
			defer f.Close() //nolint:errcheck
			in = f
		}

		st, err := renderResult(in, viewportFromConfig(cfg.Map), styleFromConfig(cfg.Map))
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), st, renderFormat)
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderFile, "file", "", "analysis response JSON (default stdin)")
	renderCmd.Flags().StringVar(&renderFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(renderCmd)
}

// renderResult draws the display payload of an analysis response on a fresh
// loaded surface and returns the surface state.
func renderResult(in io.Reader, vp mapengine.Viewport, style annotate.Style) (mapengine.State, error) {
	var res model.AnalysisResult
	if err := json.NewDecoder(in).Decode(&res); err != nil {
		return mapengine.State{}, eris.Wrap(err, "decode analysis response")
	}
	payload, err := res.Payload()
	if err != nil {
		return mapengine.State{}, err
	}

	mem := mapengine.NewMemory(vp)
	mem.Load()
	annotate.New(mapengine.NewAdapter(mem), style).RenderDisplay(payload)
	return mem.Snapshot()
}
