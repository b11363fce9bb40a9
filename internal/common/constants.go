package common

// Environment variable keys
const (
	EnvConfigFile    = "CONFIG_FILE"
	EnvDataPath      = "DATA_PATH"
	EnvOutputPath    = "OUTPUT_PATH"
	EnvMetricsFile   = "METRICS_FILE"
	EnvNeighborCount = "NEIGHBOR_COUNT"
	EnvEnsembleSize  = "ENSEMBLE_SIZE"
	EnvMaxDepth      = "MAX_DEPTH"
	EnvLearningRate  = "LEARNING_RATE"
	EnvSubsample     = "SUBSAMPLE"
	EnvMinStackRows  = "MIN_STACK_ROWS"
	EnvTestRatio     = "TEST_RATIO"
	EnvStackRatio    = "STACK_RATIO"
	EnvSeed          = "SEED"
	EnvSplitMode     = "SPLIT_MODE"
	EnvCohortSize    = "COHORT_SIZE"
	EnvPrevalence    = "PREVALENCE"
)

// Split modes
const (
	// SplitModeHoldout partitions raw data into train/stack/test before any oversampling.
	SplitModeHoldout = "holdout"
	// SplitModeObserved oversamples the whole dataset, then splits 80/20 and fits the
	// meta-learner on the same split it is evaluated on. Leaks; kept for comparison only.
	SplitModeObserved = "observed"
)

// Configuration defaults
const (
	DefaultDataPath      = "data/cohort.csv"
	DefaultOutputPath    = "reports"
	DefaultNeighborCount = 5
	DefaultEnsembleSize  = 200
	DefaultMaxDepth      = 7
	DefaultLearningRate  = 0.1
	DefaultSubsample     = 1.0
	DefaultMinStackRows  = 20
	DefaultTestRatio     = 0.2
	DefaultStackRatio    = 0.2
	DefaultSeed          = 42
	DefaultSplitMode     = SplitModeHoldout
	DefaultCohortSize    = 1000
	DefaultPrevalence    = 0.15
)

// Validation constants
const (
	MinNeighborCount   = 1
	MaxNeighborCount   = 50
	MinEnsembleSize    = 1
	MaxEnsembleSize    = 5000
	MinMaxDepth        = 1
	MaxMaxDepth        = 32
	MaxPartitionRatio  = 0.5
	MaxHeldOutFraction = 0.8
	MinStackRowsFloor  = 2
	MinCohortSize      = 10
	MaxCohortSize      = 10_000_000
)
