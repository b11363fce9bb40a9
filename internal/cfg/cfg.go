// Package cfg loads the pipeline settings from a YAML file or the environment.
//
// Every value is a fixed per-run constant: neighbour count, ensemble size, tree depth,
// boosting learning rate, seeds and partition ratios. Nothing here is tuned automatically.
package cfg

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"clinical-ensemble/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath    string
	OutputPath  string
	MetricsFile string

	NeighborCount int
	EnsembleSize  int
	MaxDepth      int
	LearningRate  float64
	Subsample     float64
	MinStackRows  int

	TestRatio  float64
	StackRatio float64
	Seed       int64
	SplitMode  string

	CohortSize int
	Prevalence float64
}

type ConfigFile struct {
	Imbalance struct {
		NeighborCount int `yaml:"neighborCount"`
	} `yaml:"imbalance"`

	Ensemble struct {
		Size         int     `yaml:"size"`
		MaxDepth     int     `yaml:"maxDepth"`
		LearningRate float64 `yaml:"learningRate"`
		Subsample    float64 `yaml:"subsample"`
		MinStackRows int     `yaml:"minStackRows"`
	} `yaml:"ensemble"`

	Partition struct {
		TestRatio  float64 `yaml:"testRatio"`
		StackRatio float64 `yaml:"stackRatio"`
		Seed       int64   `yaml:"seed"`
		Mode       string  `yaml:"mode"`
	} `yaml:"partition"`

	Cohort struct {
		Size       int     `yaml:"size"`
		Prevalence float64 `yaml:"prevalence"`
	} `yaml:"cohort"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		OutputPath  string `yaml:"outputPath"`
		MetricsFile string `yaml:"metricsFile"`
	} `yaml:"system"`
}

// Load reads settings from CONFIG_FILE when set, otherwise from the environment.
// A .env file in the working directory is applied first; it never overrides
// variables that are already set.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

// Default returns the built-in settings without consulting the environment.
func Default() Settings {
	return Settings{
		DataPath:      common.DefaultDataPath,
		OutputPath:    common.DefaultOutputPath,
		NeighborCount: common.DefaultNeighborCount,
		EnsembleSize:  common.DefaultEnsembleSize,
		MaxDepth:      common.DefaultMaxDepth,
		LearningRate:  common.DefaultLearningRate,
		Subsample:     common.DefaultSubsample,
		MinStackRows:  common.DefaultMinStackRows,
		TestRatio:     common.DefaultTestRatio,
		StackRatio:    common.DefaultStackRatio,
		Seed:          common.DefaultSeed,
		SplitMode:     common.DefaultSplitMode,
		CohortSize:    common.DefaultCohortSize,
		Prevalence:    common.DefaultPrevalence,
	}
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	d := Default()
	settings := Settings{
		DataPath:      getEnvOrDefault(common.EnvDataPath, stringOr(config.System.DataPath, d.DataPath)),
		OutputPath:    getEnvOrDefault(common.EnvOutputPath, stringOr(config.System.OutputPath, d.OutputPath)),
		MetricsFile:   getEnvOrDefault(common.EnvMetricsFile, config.System.MetricsFile),
		NeighborCount: getIntFromEnvOrConfig(common.EnvNeighborCount, config.Imbalance.NeighborCount, d.NeighborCount),
		EnsembleSize:  getIntFromEnvOrConfig(common.EnvEnsembleSize, config.Ensemble.Size, d.EnsembleSize),
		MaxDepth:      getIntFromEnvOrConfig(common.EnvMaxDepth, config.Ensemble.MaxDepth, d.MaxDepth),
		LearningRate:  getFloatFromEnvOrConfig(common.EnvLearningRate, config.Ensemble.LearningRate, d.LearningRate),
		Subsample:     getFloatFromEnvOrConfig(common.EnvSubsample, config.Ensemble.Subsample, d.Subsample),
		MinStackRows:  getIntFromEnvOrConfig(common.EnvMinStackRows, config.Ensemble.MinStackRows, d.MinStackRows),
		TestRatio:     getFloatFromEnvOrConfig(common.EnvTestRatio, config.Partition.TestRatio, d.TestRatio),
		StackRatio:    getFloatFromEnvOrConfig(common.EnvStackRatio, config.Partition.StackRatio, d.StackRatio),
		Seed:          getInt64FromEnvOrConfig(common.EnvSeed, config.Partition.Seed, d.Seed),
		SplitMode:     getEnvOrDefault(common.EnvSplitMode, stringOr(config.Partition.Mode, d.SplitMode)),
		CohortSize:    getIntFromEnvOrConfig(common.EnvCohortSize, config.Cohort.Size, d.CohortSize),
		Prevalence:    getFloatFromEnvOrConfig(common.EnvPrevalence, config.Cohort.Prevalence, d.Prevalence),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	d := Default()
	settings := Settings{
		DataPath:      getEnvOrDefault(common.EnvDataPath, d.DataPath),
		OutputPath:    getEnvOrDefault(common.EnvOutputPath, d.OutputPath),
		MetricsFile:   os.Getenv(common.EnvMetricsFile), // optional
		NeighborCount: getIntOrDefault(common.EnvNeighborCount, d.NeighborCount),
		EnsembleSize:  getIntOrDefault(common.EnvEnsembleSize, d.EnsembleSize),
		MaxDepth:      getIntOrDefault(common.EnvMaxDepth, d.MaxDepth),
		LearningRate:  getFloatOrDefault(common.EnvLearningRate, d.LearningRate),
		Subsample:     getFloatOrDefault(common.EnvSubsample, d.Subsample),
		MinStackRows:  getIntOrDefault(common.EnvMinStackRows, d.MinStackRows),
		TestRatio:     getFloatOrDefault(common.EnvTestRatio, d.TestRatio),
		StackRatio:    getFloatOrDefault(common.EnvStackRatio, d.StackRatio),
		Seed:          getInt64OrDefault(common.EnvSeed, d.Seed),
		SplitMode:     getEnvOrDefault(common.EnvSplitMode, d.SplitMode),
		CohortSize:    getIntOrDefault(common.EnvCohortSize, d.CohortSize),
		Prevalence:    getFloatOrDefault(common.EnvPrevalence, d.Prevalence),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getInt64OrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// Validate re-checks settings after callers override fields, e.g. from flags.
func (s *Settings) Validate() error {
	return validateSettings(s)
}

// validateSettings checks every tunable against its allowed range
func validateSettings(settings *Settings) error {
	if settings.NeighborCount < common.MinNeighborCount || settings.NeighborCount > common.MaxNeighborCount {
		return fmt.Errorf("neighbor count must be between %d and %d, got %d",
			common.MinNeighborCount, common.MaxNeighborCount, settings.NeighborCount)
	}
	if settings.EnsembleSize < common.MinEnsembleSize || settings.EnsembleSize > common.MaxEnsembleSize {
		return fmt.Errorf("ensemble size must be between %d and %d, got %d",
			common.MinEnsembleSize, common.MaxEnsembleSize, settings.EnsembleSize)
	}
	if settings.MaxDepth < common.MinMaxDepth || settings.MaxDepth > common.MaxMaxDepth {
		return fmt.Errorf("max depth must be between %d and %d, got %d",
			common.MinMaxDepth, common.MaxMaxDepth, settings.MaxDepth)
	}
	if settings.LearningRate <= 0 || settings.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %f", settings.LearningRate)
	}
	if settings.Subsample <= 0 || settings.Subsample > 1 {
		return fmt.Errorf("subsample must be in (0, 1], got %f", settings.Subsample)
	}
	if settings.MinStackRows < common.MinStackRowsFloor {
		return fmt.Errorf("min stack rows must be at least %d, got %d", common.MinStackRowsFloor, settings.MinStackRows)
	}

	if settings.TestRatio <= 0 || settings.TestRatio >= common.MaxPartitionRatio {
		return fmt.Errorf("test ratio must be in (0, %.1f), got %f", common.MaxPartitionRatio, settings.TestRatio)
	}
	if settings.StackRatio <= 0 || settings.StackRatio >= common.MaxPartitionRatio {
		return fmt.Errorf("stack ratio must be in (0, %.1f), got %f", common.MaxPartitionRatio, settings.StackRatio)
	}
	if settings.TestRatio+settings.StackRatio >= common.MaxHeldOutFraction {
		return fmt.Errorf("test and stack ratios together must stay below %.1f, got %f",
			common.MaxHeldOutFraction, settings.TestRatio+settings.StackRatio)
	}

	switch strings.ToLower(settings.SplitMode) {
	case common.SplitModeHoldout, common.SplitModeObserved:
		settings.SplitMode = strings.ToLower(settings.SplitMode)
	default:
		return fmt.Errorf("unknown split mode %q", settings.SplitMode)
	}

	if settings.CohortSize < common.MinCohortSize || settings.CohortSize > common.MaxCohortSize {
		return fmt.Errorf("cohort size must be between %d and %d, got %d",
			common.MinCohortSize, common.MaxCohortSize, settings.CohortSize)
	}
	if settings.Prevalence <= 0 || settings.Prevalence >= 1 {
		return fmt.Errorf("prevalence must be in (0, 1), got %f", settings.Prevalence)
	}

	return nil
}
