// Package imbalance corrects skewed class distributions before training.
//
// Corrector synthesises minority samples by interpolating between a minority record
// and one of its k nearest minority neighbours until both classes have the same count.
// EstimateWeights derives frequency-balancing class weights for downstream learners.
package imbalance

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"clinical-ensemble/internal/dataset"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrEmptyMinorityClass          = errors.New("imbalance: minority class is empty")
	ErrInsufficientMinoritySamples = errors.New("imbalance: need at least two minority samples")
)

// DefaultNeighbors is the neighbour count used when none is configured.
const DefaultNeighbors = 5

// MetricsInterface is the subset of pipeline metrics the corrector reports to.
type MetricsInterface interface {
	SyntheticSamplesAdd(n float64)
}

type Corrector struct {
	k       int
	rnd     *rand.Rand
	metrics MetricsInterface
}

// NewCorrector returns a corrector drawing all randomness from rnd.
// A non-positive k falls back to DefaultNeighbors.
func NewCorrector(k int, rnd *rand.Rand) *Corrector {
	if k <= 0 {
		k = DefaultNeighbors
	}
	return &Corrector{k: k, rnd: rnd}
}

// WithMetrics attaches a metrics sink and returns the corrector.
func (c *Corrector) WithMetrics(m MetricsInterface) *Corrector {
	c.metrics = m
	return c
}

// Balance returns a dataset holding every original row, unchanged and in order,
// followed by synthetic minority rows until both classes have equal counts.
// An already balanced dataset is returned as is.
func (c *Corrector) Balance(ds *dataset.Dataset) (*dataset.Dataset, error) {
	neg, pos := ds.ClassCounts()
	if neg == pos && neg > 0 {
		return ds, nil
	}

	minorityLabel, minorityCount, majorityCount := dataset.Positive, pos, neg
	if pos > neg {
		minorityLabel, minorityCount, majorityCount = dataset.Negative, neg, pos
	}
	if minorityCount == 0 {
		return nil, fmt.Errorf("%w: %d majority rows, 0 minority rows", ErrEmptyMinorityClass, majorityCount)
	}
	if minorityCount < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientMinoritySamples, minorityCount)
	}

	minority := ds.Subset(ds.Indices(minorityLabel)).Records
	need := majorityCount - minorityCount
	synthetic := c.synthesize(minority, need)

	out := &dataset.Dataset{
		FeatureNames: ds.FeatureNames,
		Records:      make([]dataset.FeatureRecord, 0, ds.Len()+need),
		Labels:       make([]dataset.Label, 0, ds.Len()+need),
	}
	out.Records = append(out.Records, ds.Records...)
	out.Labels = append(out.Labels, ds.Labels...)
	for _, r := range synthetic {
		out.Records = append(out.Records, r)
		out.Labels = append(out.Labels, minorityLabel)
	}

	if c.metrics != nil {
		c.metrics.SyntheticSamplesAdd(float64(need))
	}

	log.Info().
		Int("majority", majorityCount).
		Int("minority", minorityCount).
		Int("synthesized", need).
		Int("neighbors", c.neighborCount(minorityCount)).
		Msg("Minority class oversampled")

	return out, nil
}

// synthesize creates n records from the minority set.
func (c *Corrector) synthesize(minority []dataset.FeatureRecord, n int) []dataset.FeatureRecord {
	neighbors := nearestNeighbors(minority, c.neighborCount(len(minority)))

	out := make([]dataset.FeatureRecord, n)
	for s := range out {
		i, j, u := c.draw(neighbors)
		out[s] = interpolate(minority[i], minority[j], u)
	}
	return out
}

// draw picks an origin uniformly, one of its neighbours uniformly and a gap in [0, 1).
func (c *Corrector) draw(neighbors [][]int) (origin, neighbor int, gap float64) {
	origin = c.rnd.Intn(len(neighbors))
	neighbor = neighbors[origin][c.rnd.Intn(len(neighbors[origin]))]
	return origin, neighbor, c.rnd.Float64()
}

// neighborCount caps k at one below the minority size.
func (c *Corrector) neighborCount(minority int) int {
	if minority <= c.k {
		return minority - 1
	}
	return c.k
}

// nearestNeighbors returns, for every record, the indices of its k closest other
// records by Euclidean distance. Ties break on the lower index.
func nearestNeighbors(records []dataset.FeatureRecord, k int) [][]int {
	type candidate struct {
		idx  int
		dist float64
	}

	out := make([][]int, len(records))
	cands := make([]candidate, 0, len(records)-1)
	for i, r := range records {
		cands = cands[:0]
		for j, o := range records {
			if i == j {
				continue
			}
			cands = append(cands, candidate{idx: j, dist: floats.Distance(r, o, 2)})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist == cands[b].dist {
				return cands[a].idx < cands[b].idx
			}
			return cands[a].dist < cands[b].dist
		})

		nn := make([]int, k)
		for m := 0; m < k; m++ {
			nn[m] = cands[m].idx
		}
		out[i] = nn
	}
	return out
}

// interpolate returns r + u*(o-r), clamped per field to the segment between r and o.
func interpolate(r, o dataset.FeatureRecord, u float64) dataset.FeatureRecord {
	diff := make([]float64, len(r))
	floats.SubTo(diff, o, r)

	s := make(dataset.FeatureRecord, len(r))
	floats.AddScaledTo(s, r, u, diff)
	for f := range s {
		lo, hi := math.Min(r[f], o[f]), math.Max(r[f], o[f])
		s[f] = math.Max(lo, math.Min(hi, s[f]))
	}
	return s
}
