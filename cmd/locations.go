package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/slugwatch/citation-cli/internal/geo"
	"github.com/slugwatch/citation-cli/pkg/geocode"
)

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Build and maintain the campus lot table",
}

var (
	importShapefile string
	importNameField string
)

var locationsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import lot names and coordinates from a campus shapefile",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := geo.ImportShapefile(importShapefile, importNameField)
		if err != nil {
			return err
		}
		if err := geo.WriteTable(cfg.Geo.LocationsPath, entries); err != nil {
			return err
		}
		zap.L().Info("locations: table written",
			zap.String("path", cfg.Geo.LocationsPath),
			zap.Int("lots", len(entries)),
		)
		return nil
	},
}

var locationsGeocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Backfill missing lot coordinates via the Places API",
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := geo.LoadIndex(cfg.Geo.LocationsPath)
		if err != nil {
			return err
		}

		client := geocode.New(cfg.Geocode)
		entries, notFound, err := geocode.Backfill(cmd.Context(), client, index.Entries(), cfg.Geocode.MaxConcurrent)
		if err != nil {
			return err
		}

		if err := geo.WriteTable(cfg.Geo.LocationsPath, entries); err != nil {
			return err
		}
		if len(notFound) > 0 {
			if err := geocode.WriteNotFoundCSV(cfg.Geocode.NotFoundCSV, notFound); err != nil {
				return err
			}
			zap.L().Warn("locations: some lots could not be placed",
				zap.Int("count", len(notFound)),
				zap.String("review_csv", cfg.Geocode.NotFoundCSV),
			)
		}
		zap.L().Info("locations: backfill done",
			zap.Int("lots", len(entries)),
			zap.Int("not_found", len(notFound)),
		)
		return nil
	},
}

func init() {
	locationsImportCmd.Flags().StringVar(&importShapefile, "shapefile", "", "path to the campus lot shapefile (.shp)")
	locationsImportCmd.Flags().StringVar(&importNameField, "name-field", "NAME", "attribute field holding the lot name")
	_ = locationsImportCmd.MarkFlagRequired("shapefile")

	locationsCmd.AddCommand(locationsImportCmd)
	locationsCmd.AddCommand(locationsGeocodeCmd)
	rootCmd.AddCommand(locationsCmd)
}
