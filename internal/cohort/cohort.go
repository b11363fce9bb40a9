// Package cohort generates seeded synthetic clinical cohorts.
//
// Rows come out raw, with categorical fields as strings, so they exercise the same
// encoding path as a real export. Positive patients are older, have longer symptom
// duration and show symptoms and abnormal tests more often than negatives.
package cohort

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"clinical-ensemble/internal/dataset"
)

const (
	ColAge      = "age"
	ColGender   = "gender"
	ColDuration = "symptom_duration_days"
	ColFever    = "fever"
	ColCough    = "cough"
	ColFatigue  = "fatigue"
	ColHeadache = "headache"
	ColBlood    = "blood_test"
	ColImaging  = "imaging_test"
	ColDisease  = "disease"
)

var (
	yesNo    = []string{"No", "Yes"}
	negPos   = []string{"Negative", "Positive"}
	genders  = []string{"Female", "Male"}
	symptoms = []string{ColFever, ColCough, ColFatigue, ColHeadache}
	tests    = []string{ColBlood, ColImaging}
)

// Schema describes the generated columns for dataset.NewEncoder.
func Schema() dataset.Schema {
	return dataset.Schema{
		Columns: []dataset.Column{
			{Name: ColAge, Kind: dataset.Numeric},
			{Name: ColGender, Kind: dataset.Categorical, Levels: genders},
			{Name: ColDuration, Kind: dataset.Numeric},
			{Name: ColFever, Kind: dataset.Categorical, Levels: yesNo},
			{Name: ColCough, Kind: dataset.Categorical, Levels: yesNo},
			{Name: ColFatigue, Kind: dataset.Categorical, Levels: yesNo},
			{Name: ColHeadache, Kind: dataset.Categorical, Levels: yesNo},
			{Name: ColBlood, Kind: dataset.Categorical, Levels: negPos},
			{Name: ColImaging, Kind: dataset.Categorical, Levels: negPos},
		},
		Label: dataset.Column{Name: ColDisease, Kind: dataset.Categorical, Levels: yesNo},
	}
}

// Columns returns every column name in CSV order, label last.
func Columns() []string {
	s := Schema()
	out := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return append(out, s.Label.Name)
}

// profile holds the per-class sampling parameters.
type profile struct {
	ageMean, ageStd float64
	durMean, durStd float64
	symptomP, testP float64
	maleP           float64
}

var (
	negativeProfile = profile{ageMean: 42, ageStd: 14, durMean: 4, durStd: 2.5, symptomP: 0.2, testP: 0.1, maleP: 0.48}
	positiveProfile = profile{ageMean: 58, ageStd: 12, durMean: 9, durStd: 3.5, symptomP: 0.6, testP: 0.65, maleP: 0.55}
)

// Generate returns n raw rows of which exactly round(n*prevalence) are positive,
// in shuffled order. Identical seeds give identical cohorts.
func Generate(n int, prevalence float64, seed int64) ([]dataset.RawRecord, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cohort: size must be positive, got %d", n)
	}
	if prevalence <= 0 || prevalence >= 1 {
		return nil, fmt.Errorf("cohort: prevalence must be in (0, 1), got %f", prevalence)
	}

	rnd := rand.New(rand.NewSource(seed))
	nPos := int(math.Round(float64(n) * prevalence))

	labels := make([]bool, n)
	for i := 0; i < nPos; i++ {
		labels[i] = true
	}
	rnd.Shuffle(n, func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })

	rows := make([]dataset.RawRecord, n)
	for i, positive := range labels {
		p := negativeProfile
		if positive {
			p = positiveProfile
		}
		rows[i] = sampleRow(rnd, p, positive)
	}
	return rows, nil
}

func sampleRow(rnd *rand.Rand, p profile, positive bool) dataset.RawRecord {
	age := clamp(math.Round(rnd.NormFloat64()*p.ageStd+p.ageMean), 18, 95)
	dur := clamp(math.Round(rnd.NormFloat64()*p.durStd+p.durMean), 0, 60)

	row := dataset.RawRecord{
		ColAge:      strconv.FormatFloat(age, 'f', -1, 64),
		ColDuration: strconv.FormatFloat(dur, 'f', -1, 64),
		ColGender:   pick(rnd, genders, p.maleP),
		ColDisease:  yesNo[0],
	}
	for _, s := range symptoms {
		row[s] = pick(rnd, yesNo, p.symptomP)
	}
	for _, t := range tests {
		row[t] = pick(rnd, negPos, p.testP)
	}
	if positive {
		row[ColDisease] = yesNo[1]
	}
	return row
}

// pick returns levels[1] with probability p, else levels[0].
func pick(rnd *rand.Rand, levels []string, p float64) string {
	if rnd.Float64() < p {
		return levels[1]
	}
	return levels[0]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
