package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fouezkebiche/memoire-projet/internal/config"
	"github.com/fouezkebiche/memoire-projet/internal/db"
	"github.com/fouezkebiche/memoire-projet/internal/model"
	"github.com/fouezkebiche/memoire-projet/internal/render"
	"github.com/fouezkebiche/memoire-projet/internal/route"
	"github.com/fouezkebiche/memoire-projet/internal/static"
	"github.com/fouezkebiche/memoire-projet/internal/static/gtfs"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "import-topology",
		Short: "Import static GTFS feeds as stations, lines and line stations",
		PersistentPreRun: func(c *cobra.Command, args []string) {
			config.LoadEnvFiles(".")
		},
		RunE: func(c *cobra.Command, args []string) error {
			return run(c.Context())
		},
		SilenceUsage: true,
	}

	flags := rootCmd.Flags()
	flags.String("db", "data/livemap.db", "SQLite path or postgres:// URL")
	flags.String("gtfs", "data/gtfs", "GTFS zip file, or a directory of zip files")
	flags.String("url", "", "Download the feed into --gtfs when stale")
	flags.Duration("max-age", 7*24*time.Hour, "Refresh the downloaded feed when older than this")
	flags.String("geojson-dir", "", "If set, write each feed's assembled network as GeoJSON into this directory")
	flags.BoolP("verbose", "v", false, "Debug logging")

	// Flags set on the command line win over the environment
	_ = viper.BindPFlags(flags)
	_ = viper.BindEnv("db", "SQLITE_DATABASE")
	_ = viper.BindEnv("url", "GTFS_STATIC_URL")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if viper.GetBool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logrus.NewEntry(logger)

	gtfsPath := viper.GetString("gtfs")

	database, err := db.Open(viper.GetString("db"), log.WithField("component", "db"))
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := database.EnsureSchema(ctx); err != nil {
		log.WithError(err).Error("Failed to ensure schema")
		return err
	}

	if url := viper.GetString("url"); url != "" {
		refresher := static.NewRefresher(url, gtfsPath, viper.GetDuration("max-age"), log.WithField("component", "refresh"))
		changed, err := refresher.RefreshIfStale(ctx)
		if err != nil {
			// Continue anyway - use existing data if available
			log.WithError(err).Warn("Static feed refresh failed")
		} else if !changed {
			log.Info("Static feed unchanged, nothing to import")
			return nil
		}
	}

	zips, err := findZips(gtfsPath)
	if err != nil {
		log.WithError(err).Error("Failed to read GTFS input")
		return err
	}
	if len(zips) == 0 {
		err := fmt.Errorf("no GTFS zip files found in %s", gtfsPath)
		log.Error(err)
		return err
	}

	geojsonDir := viper.GetString("geojson-dir")
	failed := 0
	for _, zipPath := range zips {
		flog := log.WithField("file", filepath.Base(zipPath))
		flog.Info("Processing feed")

		data, err := gtfs.Parse(zipPath, flog)
		if err != nil {
			flog.WithError(err).Error("Failed to parse feed")
			failed++
			continue
		}

		topo := gtfs.BuildTopology(data)
		stats, err := database.ImportTopology(ctx, topo)
		if err != nil {
			flog.WithError(err).Error("Failed to import topology")
			failed++
			continue
		}
		flog.WithFields(logrus.Fields{
			"stations":       stats.Stations,
			"valid_stations": gtfs.ValidStations(topo),
			"lines":          stats.Lines,
			"line_stations":  stats.LineStations,
		}).Info("Feed imported")

		if geojsonDir != "" {
			if err := writeGeoJSON(geojsonDir, zipPath, topo); err != nil {
				flog.WithError(err).Warn("Failed to write GeoJSON")
			}
		}
	}

	if failed > 0 {
		err := fmt.Errorf("%d of %d feeds failed", failed, len(zips))
		log.Error(err)
		return err
	}
	log.Info("Import complete")
	return nil
}

// writeGeoJSON assembles topo and writes it as <feed>.geojson into dir.
func writeGeoJSON(dir, zipPath string, topo model.Topology) error {
	res := route.New().Assemble(topo.Lines, topo.Stations, topo.LineStations)
	body, err := render.FeatureCollection(res).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode network: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	name := strings.TrimSuffix(filepath.Base(zipPath), ".zip") + ".geojson"
	return os.WriteFile(filepath.Join(dir, name), body, 0644)
}

// findZips returns path itself when it is a file, else the zip files in it.
func findZips(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var zips []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		zips = append(zips, filepath.Join(path, entry.Name()))
	}
	return zips, nil
}
