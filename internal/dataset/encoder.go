package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownCategory = errors.New("dataset: unknown category")
	ErrMissingColumn   = errors.New("dataset: missing column")
)

type ColumnKind int

const (
	Numeric ColumnKind = iota
	Categorical
)

// Column describes one raw field. Categorical levels are encoded by position:
// Levels[0] -> 0, Levels[1] -> 1, and so on.
type Column struct {
	Name   string
	Kind   ColumnKind
	Levels []string
}

// Schema lists the feature columns in output order plus the label column.
// The label column must be categorical with exactly two levels, negative first.
type Schema struct {
	Columns []Column
	Label   Column
}

// RawRecord is one unencoded row keyed by column name.
type RawRecord map[string]string

// Encoder maps raw rows to numeric records following a Schema.
type Encoder struct {
	schema Schema
	levels []map[string]float64
	label  map[string]Label
}

func NewEncoder(schema Schema) (*Encoder, error) {
	if len(schema.Columns) == 0 {
		return nil, errors.New("dataset: schema has no feature columns")
	}
	if schema.Label.Kind != Categorical || len(schema.Label.Levels) != 2 {
		return nil, fmt.Errorf("dataset: label column %q must be categorical with two levels", schema.Label.Name)
	}

	e := &Encoder{
		schema: schema,
		levels: make([]map[string]float64, len(schema.Columns)),
		label: map[string]Label{
			normalize(schema.Label.Levels[0]): Negative,
			normalize(schema.Label.Levels[1]): Positive,
		},
	}
	for i, c := range schema.Columns {
		if c.Kind != Categorical {
			continue
		}
		if len(c.Levels) == 0 {
			return nil, fmt.Errorf("dataset: categorical column %q has no levels", c.Name)
		}
		m := make(map[string]float64, len(c.Levels))
		for code, lvl := range c.Levels {
			m[normalize(lvl)] = float64(code)
		}
		e.levels[i] = m
	}
	return e, nil
}

// FeatureNames returns the output column order.
func (e *Encoder) FeatureNames() []string {
	names := make([]string, len(e.schema.Columns))
	for i, c := range e.schema.Columns {
		names[i] = c.Name
	}
	return names
}

// EncodeRow converts the feature part of one raw row.
func (e *Encoder) EncodeRow(raw RawRecord) (FeatureRecord, error) {
	out := make(FeatureRecord, len(e.schema.Columns))
	for i, c := range e.schema.Columns {
		v, ok := raw[c.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c.Name)
		}
		switch c.Kind {
		case Numeric:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			out[i] = f
		case Categorical:
			code, ok := e.levels[i][normalize(v)]
			if !ok {
				return nil, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, c.Name, v)
			}
			out[i] = code
		}
	}
	return out, nil
}

// EncodeLabel converts the label field of one raw row.
func (e *Encoder) EncodeLabel(raw RawRecord) (Label, error) {
	v, ok := raw[e.schema.Label.Name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingColumn, e.schema.Label.Name)
	}
	l, ok := e.label[normalize(v)]
	if !ok {
		return 0, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, e.schema.Label.Name, v)
	}
	return l, nil
}

// Encode converts every row. It fails on the first malformed row.
func (e *Encoder) Encode(rows []RawRecord) (*Dataset, error) {
	ds := New(e.FeatureNames())
	for i, raw := range rows {
		r, err := e.EncodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		l, err := e.EncodeLabel(raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if err := ds.Add(r, l); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return ds, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
