// Package storage persists encoded cohorts and pipeline run summaries.
// It uses BoltDB as the underlying storage engine. Cohorts are keyed by name;
// runs are keyed by start time so cursor order is chronological.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"clinical-ensemble/internal/dataset"

	"go.etcd.io/bbolt"
)

const (
	cohortsBucket = "cohorts" // Encoded datasets by name
	runsBucket    = "runs"    // Run summaries by start time

	dbFile = "clinical-ensemble.db"
)

var ErrNotFound = errors.New("storage: not found")

// Store provides persistent storage backed by BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures all buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(cohortsBucket)); err != nil {
			return fmt.Errorf("create cohorts bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// cohortRecord is the stored form of an encoded dataset.
type cohortRecord struct {
	Name         string                  `json:"name"`
	CreatedAt    time.Time               `json:"created_at"`
	FeatureNames []string                `json:"feature_names"`
	Records      []dataset.FeatureRecord `json:"records"`
	Labels       []dataset.Label         `json:"labels"`
}

// CohortInfo describes a stored cohort without its rows.
type CohortInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Rows      int       `json:"rows"`
	Positives int       `json:"positives"`
}

// SaveCohort stores ds under name, replacing any cohort of the same name.
func (s *Store) SaveCohort(name string, ds *dataset.Dataset) error {
	if name == "" {
		return errors.New("storage: cohort name is empty")
	}
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("save cohort %s: %w", name, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(cohortsBucket))

		data, err := json.Marshal(cohortRecord{
			Name:         name,
			CreatedAt:    time.Now().UTC(),
			FeatureNames: ds.FeatureNames,
			Records:      ds.Records,
			Labels:       ds.Labels,
		})
		if err != nil {
			return fmt.Errorf("marshal cohort: %w", err)
		}
		return b.Put([]byte(name), data)
	})
}

// LoadCohort returns the cohort stored under name.
func (s *Store) LoadCohort(name string) (*dataset.Dataset, error) {
	var rec cohortRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(cohortsBucket)).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: cohort %q", ErrNotFound, name)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}

	ds := &dataset.Dataset{FeatureNames: rec.FeatureNames, Records: rec.Records, Labels: rec.Labels}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("load cohort %s: %w", name, err)
	}
	return ds, nil
}

// ListCohorts returns every stored cohort, sorted by name.
func (s *Store) ListCohorts() ([]CohortInfo, error) {
	var out []CohortInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cohortsBucket)).ForEach(func(k, v []byte) error {
			var rec cohortRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed records
			}
			info := CohortInfo{Name: rec.Name, CreatedAt: rec.CreatedAt, Rows: len(rec.Labels)}
			for _, l := range rec.Labels {
				if l == dataset.Positive {
					info.Positives++
				}
			}
			out = append(out, info)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// DeleteCohort removes a cohort. Deleting a missing cohort is not an error.
func (s *Store) DeleteCohort(name string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(cohortsBucket)).Delete([]byte(name))
	})
}
