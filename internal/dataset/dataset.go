// Package dataset holds the numeric representation every pipeline stage works on.
//
// A Dataset is an ordered collection of (FeatureRecord, Label) pairs that share one
// dimensionality. Records are never mutated once added: stages that need a different
// dataset build a new one, and may share the underlying record slices.
package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrDimensionMismatch = errors.New("dataset: feature dimension mismatch")
	ErrEmptyDataset      = errors.New("dataset: empty dataset")
	ErrInvalidLabel      = errors.New("dataset: label must be 0 or 1")
)

// Label is the binary target. Positive marks the rare, disease-positive class.
type Label int

const (
	Negative Label = 0
	Positive Label = 1
)

func (l Label) Valid() bool { return l == Negative || l == Positive }

// FeatureRecord is a fixed-width row of numeric fields.
type FeatureRecord []float64

// Clone returns an independent copy of the record.
func (r FeatureRecord) Clone() FeatureRecord {
	out := make(FeatureRecord, len(r))
	copy(out, r)
	return out
}

type Dataset struct {
	FeatureNames []string
	Records      []FeatureRecord
	Labels       []Label
}

// New returns an empty dataset whose rows must have len(featureNames) fields.
func New(featureNames []string) *Dataset {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return &Dataset{FeatureNames: names}
}

// Add appends one labelled record.
func (d *Dataset) Add(r FeatureRecord, l Label) error {
	if len(r) != d.Dim() {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrDimensionMismatch, d.Dim(), len(r))
	}
	if !l.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidLabel, l)
	}
	d.Records = append(d.Records, r)
	d.Labels = append(d.Labels, l)
	return nil
}

func (d *Dataset) Len() int { return len(d.Records) }

// Dim is the width of every record.
func (d *Dataset) Dim() int { return len(d.FeatureNames) }

// Validate checks the shape invariants of a dataset built outside of Add.
func (d *Dataset) Validate() error {
	if len(d.Records) != len(d.Labels) {
		return fmt.Errorf("dataset: %d records but %d labels", len(d.Records), len(d.Labels))
	}
	for i, r := range d.Records {
		if len(r) != d.Dim() {
			return fmt.Errorf("%w: row %d has %d fields, want %d", ErrDimensionMismatch, i, len(r), d.Dim())
		}
		if !d.Labels[i].Valid() {
			return fmt.Errorf("%w: row %d", ErrInvalidLabel, i)
		}
	}
	return nil
}

// ClassCounts returns the number of negative and positive rows.
func (d *Dataset) ClassCounts() (neg, pos int) {
	for _, l := range d.Labels {
		if l == Positive {
			pos++
		} else {
			neg++
		}
	}
	return neg, pos
}

// Indices returns the row positions carrying label l, in order.
func (d *Dataset) Indices(l Label) []int {
	out := make([]int, 0, len(d.Labels))
	for i, v := range d.Labels {
		if v == l {
			out = append(out, i)
		}
	}
	return out
}

// Subset builds a dataset from the given rows. Records are shared, not copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	out := &Dataset{
		FeatureNames: d.FeatureNames,
		Records:      make([]FeatureRecord, len(idx)),
		Labels:       make([]Label, len(idx)),
	}
	for i, j := range idx {
		out.Records[i] = d.Records[j]
		out.Labels[i] = d.Labels[j]
	}
	return out
}

// Concat returns a new dataset holding d's rows followed by other's rows.
func (d *Dataset) Concat(other *Dataset) (*Dataset, error) {
	if other.Dim() != d.Dim() {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, d.Dim(), other.Dim())
	}
	out := &Dataset{
		FeatureNames: d.FeatureNames,
		Records:      make([]FeatureRecord, 0, d.Len()+other.Len()),
		Labels:       make([]Label, 0, d.Len()+other.Len()),
	}
	out.Records = append(append(out.Records, d.Records...), other.Records...)
	out.Labels = append(append(out.Labels, d.Labels...), other.Labels...)
	return out, nil
}

// LabelsAsFloat returns labels as 0/1 floats, the form scoring code consumes.
func (d *Dataset) LabelsAsFloat() []float64 {
	out := make([]float64, len(d.Labels))
	for i, l := range d.Labels {
		out[i] = float64(l)
	}
	return out
}

// StratifiedSplit shuffles each class with rnd and moves int(count*ratio) rows of it
// into held. Class proportions are kept in both halves and the rest keeps the
// remaining rows. The receiver is not modified.
func (d *Dataset) StratifiedSplit(rnd *rand.Rand, ratio float64) (rest, held *Dataset, err error) {
	if d.Len() == 0 {
		return nil, nil, ErrEmptyDataset
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("dataset: split ratio must be in (0, 1), got %f", ratio)
	}

	var restIdx, heldIdx []int
	for _, l := range []Label{Negative, Positive} {
		idx := d.Indices(l)
		rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nHeld := int(float64(len(idx)) * ratio)
		heldIdx = append(heldIdx, idx[:nHeld]...)
		restIdx = append(restIdx, idx[nHeld:]...)
	}
	rnd.Shuffle(len(restIdx), func(i, j int) { restIdx[i], restIdx[j] = restIdx[j], restIdx[i] })
	rnd.Shuffle(len(heldIdx), func(i, j int) { heldIdx[i], heldIdx[j] = heldIdx[j], heldIdx[i] })

	return d.Subset(restIdx), d.Subset(heldIdx), nil
}
