package main

import (
	"flag"
	"os"
	"path/filepath"

	"clinical-ensemble/internal/cohort"
	"clinical-ensemble/internal/common"
	"clinical-ensemble/internal/dataset"
	"clinical-ensemble/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		size       = flag.Int("size", common.DefaultCohortSize, "Number of patients")
		prevalence = flag.Float64("prevalence", common.DefaultPrevalence, "Fraction of positive patients")
		seed       = flag.Int64("seed", common.DefaultSeed, "Random seed")
		output     = flag.String("output", common.DefaultDataPath, "CSV output path")
		storePath  = flag.String("store", "", "Also save the encoded cohort to this BoltDB directory")
		name       = flag.String("name", "synthetic", "Cohort name in the store")
		list       = flag.Bool("list", false, "List cohorts in the store and exit")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *list {
		listCohorts(*storePath)
		return
	}

	rows, err := cohort.Generate(*size, *prevalence, *seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate cohort")
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create output directory")
	}
	file, err := os.Create(*output)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create CSV file")
	}
	defer file.Close()

	if err := dataset.WriteCSV(file, cohort.Columns(), rows); err != nil {
		log.Fatal().Err(err).Msg("Failed to write CSV")
	}

	log.Info().
		Str("file", *output).
		Int("rows", len(rows)).
		Float64("prevalence", *prevalence).
		Int64("seed", *seed).
		Msg("Cohort generated")

	if *storePath == "" {
		return
	}

	enc, err := dataset.NewEncoder(cohort.Schema())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build encoder")
	}
	ds, err := enc.Encode(rows)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode cohort")
	}

	store, err := storage.New(*storePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open BoltDB")
	}
	defer store.Close()

	if err := store.SaveCohort(*name, ds); err != nil {
		log.Fatal().Err(err).Msg("Failed to save cohort")
	}
	log.Info().Str("cohort", *name).Str("store", *storePath).Msg("Cohort stored")
}

func listCohorts(storePath string) {
	if storePath == "" {
		log.Fatal().Msg("-list requires -store")
	}
	store, err := storage.New(storePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open BoltDB")
	}
	defer store.Close()

	cohorts, err := store.ListCohorts()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list cohorts")
	}
	for _, c := range cohorts {
		log.Info().
			Str("name", c.Name).
			Int("rows", c.Rows).
			Int("positives", c.Positives).
			Time("created", c.CreatedAt).
			Msg("Cohort")
	}
}
