package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FeatureImportance is one named entry of a ranked importance vector.
type FeatureImportance struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// RankImportances pairs names with scores and sorts by score, highest first.
// Equal scores keep feature order.
func RankImportances(names []string, scores []float64) ([]FeatureImportance, error) {
	if len(names) != len(scores) {
		return nil, fmt.Errorf("ml: %d feature names for %d importances", len(names), len(scores))
	}
	out := make([]FeatureImportance, len(names))
	for i := range names {
		out[i] = FeatureImportance{Name: names[i], Score: scores[i]}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out, nil
}

// TopFeatures returns the names of the n highest ranked features.
func TopFeatures(ranked []FeatureImportance, n int) []string {
	n = max(0, min(n, len(ranked)))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].Name
	}
	return out
}

// SaveImportances writes a ranking as indented JSON, creating parent directories.
func SaveImportances(path string, ranked []FeatureImportance) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ranked, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func LoadImportances(path string) ([]FeatureImportance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ranked []FeatureImportance
	if err := json.Unmarshal(data, &ranked); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return ranked, nil
}
