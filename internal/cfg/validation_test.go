package cfg

import (
	"strings"
	"testing"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	s := Default()
	return &s
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Ranges(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(s *Settings)
		wantMsg string
	}{
		{"zero neighbors", func(s *Settings) { s.NeighborCount = 0 }, "neighbor count"},
		{"too many neighbors", func(s *Settings) { s.NeighborCount = 51 }, "neighbor count"},
		{"zero ensemble", func(s *Settings) { s.EnsembleSize = 0 }, "ensemble size"},
		{"huge ensemble", func(s *Settings) { s.EnsembleSize = 10000 }, "ensemble size"},
		{"zero depth", func(s *Settings) { s.MaxDepth = 0 }, "max depth"},
		{"zero learning rate", func(s *Settings) { s.LearningRate = 0 }, "learning rate"},
		{"learning rate above one", func(s *Settings) { s.LearningRate = 1.5 }, "learning rate"},
		{"zero subsample", func(s *Settings) { s.Subsample = 0 }, "subsample"},
		{"tiny stack floor", func(s *Settings) { s.MinStackRows = 1 }, "min stack rows"},
		{"zero test ratio", func(s *Settings) { s.TestRatio = 0 }, "test ratio"},
		{"half stack ratio", func(s *Settings) { s.StackRatio = 0.5 }, "stack ratio"},
		{"held-out too large", func(s *Settings) { s.TestRatio, s.StackRatio = 0.4, 0.45 }, "together"},
		{"bad split mode", func(s *Settings) { s.SplitMode = "kfold" }, "split mode"},
		{"tiny cohort", func(s *Settings) { s.CohortSize = 5 }, "cohort size"},
		{"prevalence one", func(s *Settings) { s.Prevalence = 1 }, "prevalence"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			tc.mutate(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatalf("Expected error for %s", tc.name)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("Expected error mentioning %q, got: %v", tc.wantMsg, err)
			}
		})
	}
}

func TestValidateSettings_NormalizesSplitMode(t *testing.T) {
	settings := createValidSettings()
	settings.SplitMode = "Observed"

	if err := validateSettings(settings); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.SplitMode != "observed" {
		t.Errorf("expected normalized split mode, got %s", settings.SplitMode)
	}
}

func TestSettings_ValidateAfterOverride(t *testing.T) {
	s := Default()
	s.SplitMode = "HOLDOUT"
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SplitMode != "holdout" {
		t.Errorf("expected normalized split mode, got %s", s.SplitMode)
	}

	s.EnsembleSize = 0
	if err := s.Validate(); err == nil {
		t.Error("expected error for zero ensemble size")
	}
}
