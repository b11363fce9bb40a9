package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu        sync.Mutex
	trained   map[string]int
	failures  map[string]int
	durations map[string]float64
}

func (m *MockMetrics) ModelTrainedInc(variant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trained == nil {
		m.trained = make(map[string]int)
	}
	m.trained[variant]++
}

func (m *MockMetrics) TrainingFailuresInc(variant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[variant]++
}

func (m *MockMetrics) TrainingDurationObserve(variant string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.durations == nil {
		m.durations = make(map[string]float64)
	}
	m.durations[variant] += seconds
}

func (m *MockMetrics) Trained(variant string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trained[variant]
}

func (m *MockMetrics) Failures(variant string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[variant]
}
