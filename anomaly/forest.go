// Package anomaly flags pixels whose NDVI time series is unusual, using an
// isolation forest fitted on a stack of monthly composites.
package anomaly

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
)

// Labels produced by Predict and stored in anomaly maps
const (
	Anomaly = -1
	NoData  = 0
	Normal  = 1
)

const eulerGamma = 0.5772156649015329

// Options configures Fit
type Options struct {
	Trees         int     `json:"trees"`
	SampleSize    int     `json:"sampleSize"`
	Contamination float64 `json:"contamination"`
	Seed          int64   `json:"seed"`
}

// DefaultOptions are 100 trees of up to 256 samples, 2% contamination
func DefaultOptions() Options {
	return Options{Trees: 100, SampleSize: 256, Contamination: 0.02, Seed: 1}
}

type node struct {
	Feature int     `json:"f,omitempty"`
	Split   float64 `json:"s,omitempty"`
	Size    int     `json:"n,omitempty"`
	Left    *node   `json:"l,omitempty"`
	Right   *node   `json:"r,omitempty"`
}

func (n *node) leaf() bool {
	return n.Left == nil
}

// Forest is a fitted isolation forest
type Forest struct {
	Options    Options `json:"options"`
	Features   int     `json:"features"`
	SampleSize int     `json:"effectiveSampleSize"`
	Threshold  float64 `json:"threshold"`
	Trees      []*node `json:"trees"`
}

// averagePathLength is c(n), the mean path length of an unsuccessful
// search in a binary search tree of n points
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	return 2*(math.Log(float64(n-1))+eulerGamma) - 2*float64(n-1)/float64(n)
}

// Fit grows a forest over samples, one row per observation
func Fit(samples [][]float64, opts Options) (*Forest, error) {
	if len(samples) == 0 {
		return nil, errors.New("no samples to fit")
	}
	if opts.Trees <= 0 || opts.SampleSize <= 1 {
		return nil, fmt.Errorf("invalid forest size %d trees x %d samples", opts.Trees, opts.SampleSize)
	}
	if opts.Contamination <= 0 || opts.Contamination >= 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5), got %v", opts.Contamination)
	}
	features := len(samples[0])
	for i, row := range samples {
		if len(row) != features {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(row), features)
		}
	}

	psi := opts.SampleSize
	if psi > len(samples) {
		psi = len(samples)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))
	rng := rand.New(rand.NewSource(opts.Seed))

	f := &Forest{Options: opts, Features: features, SampleSize: psi}
	for t := 0; t < opts.Trees; t++ {
		perm := rng.Perm(len(samples))[:psi]
		subset := make([][]float64, psi)
		for i, p := range perm {
			subset[i] = samples[p]
		}
		f.Trees = append(f.Trees, grow(subset, 0, maxDepth, rng))
	}

	scores := make([]float64, len(samples))
	for i, row := range samples {
		scores[i] = f.Score(row)
	}
	f.Threshold = quantile(scores, 1-opts.Contamination)
	return f, nil
}

func grow(samples [][]float64, depth, maxDepth int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(samples) <= 1 {
		return &node{Size: len(samples)}
	}
	features := len(samples[0])
	for _, feature := range rng.Perm(features) {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range samples {
			lo = math.Min(lo, row[feature])
			hi = math.Max(hi, row[feature])
		}
		if !(hi > lo) {
			continue
		}
		split := lo + rng.Float64()*(hi-lo)
		var left, right [][]float64
		for _, row := range samples {
			if row[feature] < split {
				left = append(left, row)
			} else {
				right = append(right, row)
			}
		}
		return &node{
			Feature: feature,
			Split:   split,
			Size:    len(samples),
			Left:    grow(left, depth+1, maxDepth, rng),
			Right:   grow(right, depth+1, maxDepth, rng),
		}
	}
	// every feature is constant here
	return &node{Size: len(samples)}
}

func pathLength(n *node, x []float64) float64 {
	depth := 0.0
	for !n.leaf() {
		if x[n.Feature] < n.Split {
			n = n.Left
		} else {
			n = n.Right
		}
		depth++
	}
	return depth + averagePathLength(n.Size)
}

// Score is the anomaly score 2^(-E[h(x)]/c(psi)). Scores near 1 are
// anomalous; scores well below 0.5 are normal.
func (f *Forest) Score(x []float64) float64 {
	total := 0.0
	for _, tree := range f.Trees {
		total += pathLength(tree, x)
	}
	mean := total / float64(len(f.Trees))
	c := averagePathLength(f.SampleSize)
	if c == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/c)
}

// Predict returns Anomaly or Normal
func (f *Forest) Predict(x []float64) int {
	if f.Score(x) > f.Threshold {
		return Anomaly
	}
	return Normal
}

// quantile interpolates linearly between closest ranks
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	i := int(math.Floor(pos))
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

// Save writes the forest as JSON
func (f *Forest) Save(path string) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a forest written by Save
func Load(path string) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := &Forest{}
	if err = json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("could not parse model %s: %w", path, err)
	}
	if len(f.Trees) == 0 || f.Features == 0 {
		return nil, fmt.Errorf("model %s has no trees", path)
	}
	return f, nil
}
