package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"clinical-ensemble/internal/evaluate"
	"clinical-ensemble/internal/ml"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// RunRecord is the persisted summary of one pipeline run.
type RunRecord struct {
	ID          uuid.UUID                         `json:"id"`
	Cohort      string                            `json:"cohort"`
	SplitMode   string                            `json:"split_mode"`
	Seed        int64                             `json:"seed"`
	StartedAt   time.Time                         `json:"started_at"`
	FinishedAt  time.Time                         `json:"finished_at"`
	Partition   evaluate.PartitionSummary         `json:"partition"`
	Models      []evaluate.Metrics                `json:"models"`
	Ensemble    evaluate.StackCoefficients        `json:"ensemble"`
	Importances map[string][]ml.FeatureImportance `json:"importances"`
}

// RunRecordFromReport keeps everything of a report except per-row predictions.
func RunRecordFromReport(cohort string, r *evaluate.Report) (RunRecord, error) {
	id, err := uuid.Parse(r.RunID)
	if err != nil {
		return RunRecord{}, fmt.Errorf("run id %q: %w", r.RunID, err)
	}
	return RunRecord{
		ID:          id,
		Cohort:      cohort,
		SplitMode:   r.SplitMode,
		Seed:        r.Seed,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Partition:   r.Partition,
		Models:      r.Models,
		Ensemble:    r.Ensemble,
		Importances: r.Importances,
	}, nil
}

// runKey orders runs by start time; the id suffix keeps keys unique.
func runKey(r RunRecord) []byte {
	return []byte(fmt.Sprintf("run_%020d_%s", r.StartedAt.UnixNano(), r.ID))
}

// SaveRun stores a run summary, assigning an id when it has none.
func (s *Store) SaveRun(r RunRecord) (RunRecord, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return b.Put(runKey(r), data)
	})
	return r, err
}

// ListRuns returns up to limit runs, newest first. A non-positive limit returns all.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) == limit {
				break
			}
			var r RunRecord
			if err := json.Unmarshal(v, &r); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, r)
		}
		return nil
	})

	return runs, err
}

// GetRun returns the run with the given id.
func (s *Store) GetRun(id uuid.UUID) (RunRecord, error) {
	var (
		run   RunRecord
		found bool
	)
	suffix := []byte("_" + id.String())

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !bytes.HasSuffix(k, suffix) {
				continue
			}
			found = true
			return json.Unmarshal(v, &run)
		}
		return nil
	})
	if err != nil {
		return RunRecord{}, err
	}
	if !found {
		return RunRecord{}, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return run, nil
}

// RunsInRange returns runs started within [start, end], oldest first.
func (s *Store) RunsInRange(start, end time.Time) ([]RunRecord, error) {
	var runs []RunRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("run_%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("run_%020d_~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var r RunRecord
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			runs = append(runs, r)
		}
		return nil
	})

	return runs, err
}
