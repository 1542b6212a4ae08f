package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/mapmind/internal/geospatial"
)

var (
	diskLng    float64
	diskLat    float64
	diskRadius float64
	diskSteps  int
)

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Print the geodesic radius preview polygon as GeoJSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		radius := diskRadius
		if radius == 0 {
			radius = cfg.Map.SelectionRadiusKm
		}
		steps := diskSteps
		if steps == 0 {
			steps = cfg.Map.DiskSteps
		}

		f, err := diskFeature(geospatial.Coordinate{Lng: diskLng, Lat: diskLat}, radius, steps)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), f, "json")
	},
}

func init() {
	diskCmd.Flags().Float64Var(&diskLng, "lng", 0, "center longitude")
	diskCmd.Flags().Float64Var(&diskLat, "lat", 0, "center latitude")
	diskCmd.Flags().Float64Var(&diskRadius, "radius", 0, "radius in km (default from config)")
	diskCmd.Flags().IntVar(&diskSteps, "steps", 0, "ring vertices (default from config)")
	rootCmd.AddCommand(diskCmd)
}

func diskFeature(center geospatial.Coordinate, radiusKm float64, steps int) (*geojson.Feature, error) {
	if err := center.Validate(); err != nil {
		return nil, eris.Wrap(err, "disk center")
	}
	poly, err := geospatial.GeodesicDisk(center, radiusKm, steps)
	if err != nil {
		return nil, err
	}
	return &geojson.Feature{
		Geometry: poly,
		Properties: map[string]any{
			"center":    []float64{center.Lng, center.Lat},
			"radius_km": radiusKm,
		},
	}, nil
}
