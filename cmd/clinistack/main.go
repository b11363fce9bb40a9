package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"clinical-ensemble/internal/cfg"
	"clinical-ensemble/internal/cohort"
	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/evaluate"
	"clinical-ensemble/internal/metrics"
	"clinical-ensemble/internal/ml"
	"clinical-ensemble/internal/pipeline"
	"clinical-ensemble/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sourceGenerate makes the CLI build a synthetic cohort instead of reading one.
const sourceGenerate = "generate"

func main() {
	var (
		dataSource  = flag.String("data", "", "CSV path, http(s) URL, or \"generate\" (default from config)")
		cohortName  = flag.String("cohort", "", "Cohort name in the store; loaded when -data is empty, saved otherwise")
		storePath   = flag.String("store", "", "Directory of the BoltDB store (empty disables persistence)")
		outputPath  = flag.String("output", "", "Output directory for reports (overrides config)")
		splitMode   = flag.String("mode", "", "Split mode: holdout or observed (overrides config)")
		seed        = flag.Int64("seed", -1, "Random seed (overrides config)")
		ensemble    = flag.Int("ensemble", 0, "Trees per base learner (overrides config)")
		metricsFile = flag.String("metrics-file", "", "Write Prometheus metrics to this textfile")
		fetchTime   = flag.Duration("fetch-timeout", 30*time.Second, "Timeout for remote cohort downloads")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if *dataSource != "" {
		settings.DataPath = *dataSource
	}
	if *outputPath != "" {
		settings.OutputPath = *outputPath
	}
	if *splitMode != "" {
		settings.SplitMode = *splitMode
	}
	if *seed >= 0 {
		settings.Seed = *seed
	}
	if *ensemble > 0 {
		settings.EnsembleSize = *ensemble
	}
	if *metricsFile != "" {
		settings.MetricsFile = *metricsFile
	}
	if err := settings.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	fmt.Println("=== Pipeline Configuration ===")
	fmt.Printf("Data Source: %s\n", describeSource(*dataSource, *cohortName, settings.DataPath))
	fmt.Printf("Output Directory: %s\n", settings.OutputPath)
	fmt.Printf("Split Mode: %s\n", settings.SplitMode)
	fmt.Printf("Seed: %d\n", settings.Seed)
	fmt.Printf("Ensemble Size: %d (depth %d, learning rate %.3f)\n",
		settings.EnsembleSize, settings.MaxDepth, settings.LearningRate)
	fmt.Println("==============================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *storage.Store
	if *storePath != "" {
		store, err = storage.New(*storePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open BoltDB")
		}
		defer store.Close()
	}

	ds, name, err := loadDataset(ctx, store, *dataSource, *cohortName, settings, *fetchTime)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load cohort")
	}

	reg := prometheus.NewRegistry()
	p := pipeline.New(pipeline.ConfigFromSettings(&settings), metrics.NewWithRegistry(reg))

	res, err := p.Run(ctx, ds)
	if err != nil {
		log.Fatal().Err(err).Msg("Pipeline failed")
	}

	reporter := evaluate.NewReporter(res.Report, settings.OutputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}

	for variant, ranked := range res.Report.Importances {
		path := filepath.Join(settings.OutputPath, "importances_"+variant+".json")
		if err := ml.SaveImportances(path, ranked); err != nil {
			log.Error().Err(err).Str("variant", variant).Msg("Failed to save importances")
			continue
		}
		log.Info().
			Str("variant", variant).
			Strs("top", ml.TopFeatures(ranked, 3)).
			Msg("Feature importances saved")
	}

	if store != nil {
		record, err := storage.RunRecordFromReport(name, res.Report)
		if err == nil {
			record, err = store.SaveRun(record)
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to persist run")
		} else {
			log.Info().Str("run", record.ID.String()).Str("cohort", name).Msg("Run persisted")
		}
	}

	if rate := metrics.TrainingFailureRate(reg); rate > 0 {
		log.Warn().Float64("rate", rate).Msg("Some base learners failed to train")
	}
	if settings.MetricsFile != "" {
		if err := metrics.WriteTextfile(reg, settings.MetricsFile); err != nil {
			log.Error().Err(err).Str("file", settings.MetricsFile).Msg("Failed to write metrics")
		}
	}

	reporter.PrintSummary()

	log.Info().
		Str("output", settings.OutputPath).
		Str("run", res.Report.RunID).
		Msg("Pipeline completed successfully")
}

// loadDataset resolves the cohort to run on and the name it is recorded under.
// A named cohort is read from the store when no data source is given; otherwise
// the source is read, encoded, and saved under the name when a store is open.
func loadDataset(ctx context.Context, store *storage.Store, source, name string, settings cfg.Settings, timeout time.Duration) (*dataset.Dataset, string, error) {
	if source == "" && name != "" {
		if store == nil {
			return nil, "", fmt.Errorf("cohort %q requested without -store", name)
		}
		ds, err := store.LoadCohort(name)
		if err != nil {
			return nil, "", err
		}
		return ds, name, nil
	}

	var (
		rows []dataset.RawRecord
		err  error
	)
	switch src := settings.DataPath; {
	case src == sourceGenerate:
		rows, err = cohort.Generate(settings.CohortSize, settings.Prevalence, settings.Seed)
	case dataset.IsRemote(src):
		rows, err = dataset.FetchCSV(ctx, src, timeout)
	default:
		rows, err = dataset.LoadCSV(src)
	}
	if err != nil {
		return nil, "", err
	}

	enc, err := dataset.NewEncoder(cohort.Schema())
	if err != nil {
		return nil, "", err
	}
	ds, err := enc.Encode(rows)
	if err != nil {
		return nil, "", err
	}

	if name == "" {
		name = cohortNameFor(settings.DataPath)
	}
	if store != nil {
		if err := store.SaveCohort(name, ds); err != nil {
			return nil, "", fmt.Errorf("failed to save cohort %q: %w", name, err)
		}
	}
	return ds, name, nil
}

// cohortNameFor derives a store key from a data source.
func cohortNameFor(source string) string {
	if source == sourceGenerate {
		return sourceGenerate
	}
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func describeSource(source, name, dataPath string) string {
	if source == "" && name != "" {
		return "store cohort " + name
	}
	return dataPath
}
