package forest

import (
	"errors"
	"fmt"
	"strconv"
)

// Params mirrors the scikit-learn RandomForestRegressor hyperparameters the
// trainer relies on. MaxDepth 0 grows trees until leaves are pure.
type Params struct {
	NEstimators     int     `json:"n_estimators"`
	MaxDepth        int     `json:"max_depth"`
	MinSamplesSplit int     `json:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf"`
	MaxFeatures     float64 `json:"max_features"`
	Bootstrap       bool    `json:"bootstrap"`
	RandomState     uint64  `json:"random_state"`
	// NJobs bounds concurrent tree fits; 0 uses the physical core count.
	NJobs int `json:"-"`
}

func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     1.0,
		Bootstrap:       true,
		RandomState:     0,
	}
}

func (p Params) Validate() error {
	if p.NEstimators < 1 {
		return errors.New("n_estimators must be >= 1")
	}
	if p.MaxDepth < 0 {
		return errors.New("max_depth must be >= 0")
	}
	if p.MinSamplesSplit < 2 {
		return errors.New("min_samples_split must be >= 2")
	}
	if p.MinSamplesLeaf < 1 {
		return errors.New("min_samples_leaf must be >= 1")
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > 1 {
		return fmt.Errorf("max_features must be in (0, 1] (got %v)", p.MaxFeatures)
	}
	if p.NJobs < 0 {
		return errors.New("n_jobs must be >= 0")
	}
	return nil
}

// Map renders the hyperparameters with their scikit-learn names.
func (p Params) Map() map[string]string {
	maxDepth := "None"
	if p.MaxDepth > 0 {
		maxDepth = strconv.Itoa(p.MaxDepth)
	}
	return map[string]string{
		"n_estimators":      strconv.Itoa(p.NEstimators),
		"max_depth":         maxDepth,
		"min_samples_split": strconv.Itoa(p.MinSamplesSplit),
		"min_samples_leaf":  strconv.Itoa(p.MinSamplesLeaf),
		"max_features":      strconv.FormatFloat(p.MaxFeatures, 'g', -1, 64),
		"bootstrap":         strconv.FormatBool(p.Bootstrap),
		"random_state":      strconv.FormatUint(p.RandomState, 10),
		"criterion":         "squared_error",
	}
}

func (p Params) maxFeatureCount(nFeatures int) int {
	n := int(p.MaxFeatures * float64(nFeatures))
	if n < 1 {
		n = 1
	}
	if n > nFeatures {
		n = nFeatures
	}
	return n
}
