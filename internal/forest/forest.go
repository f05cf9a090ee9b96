// Package forest implements a random forest regressor of CART trees.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/klauspost/cpuid/v2"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var ErrNotFitted = errors.New("forest: model is not fitted")

// RandomForestRegressor averages the predictions of bootstrapped regression
// trees.
type RandomForestRegressor struct {
	params    Params
	nFeatures int
	trees     []*Tree
	progress  func(done, total int)
}

type Option func(*RandomForestRegressor)

// WithProgress registers a callback invoked after each tree is fitted.
// Calls are serialized.
func WithProgress(fn func(done, total int)) Option {
	return func(f *RandomForestRegressor) {
		f.progress = fn
	}
}

func New(params Params, opts ...Option) (*RandomForestRegressor, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("forest params: %w", err)
	}
	f := &RandomForestRegressor{params: params}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

func (f *RandomForestRegressor) Name() string {
	return "RandomForestRegressor"
}

func (f *RandomForestRegressor) Params() map[string]string {
	return f.params.Map()
}

func (f *RandomForestRegressor) Trees() []*Tree {
	return f.trees
}

func (f *RandomForestRegressor) NumFeatures() int {
	return f.nFeatures
}

// Workers reports how many trees fit concurrently under params.
func Workers(params Params) int {
	if params.NJobs > 0 {
		return params.NJobs
	}
	if n := cpuid.CPU.PhysicalCores; n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// Fit grows the trees. Tree seeds are drawn from RandomState before any tree
// is fitted, so results do not depend on scheduling.
func (f *RandomForestRegressor) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	if f == nil {
		return errors.New("forest not initialized")
	}
	rows, err := matrixRows(X)
	if err != nil {
		return err
	}
	if len(rows) != len(y) {
		return fmt.Errorf("forest: %d samples but %d targets", len(rows), len(y))
	}
	if floats.HasNaN(y) {
		return errors.New("forest: targets contain NaN")
	}

	total := f.params.NEstimators
	seeder := rand.New(rand.NewPCG(f.params.RandomState, 0))
	seeds := make([]uint64, total)
	for i := range seeds {
		seeds[i] = seeder.Uint64()
	}

	trees := make([]*Tree, total)
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(f.params))
	for i := range total {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trees[i] = fitTree(rows, y, f.params, seeds[i])
			if f.progress != nil {
				mu.Lock()
				done++
				f.progress(done, total)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fit forest: %w", err)
	}
	f.trees = trees
	f.nFeatures = len(rows[0])
	return nil
}

func (f *RandomForestRegressor) Predict(X mat.Matrix) ([]float64, error) {
	if f == nil || len(f.trees) == 0 {
		return nil, ErrNotFitted
	}
	rows, err := matrixRows(X)
	if err != nil {
		return nil, err
	}
	if len(rows[0]) != f.nFeatures {
		return nil, fmt.Errorf("forest: fitted on %d features, got %d", f.nFeatures, len(rows[0]))
	}
	out := make([]float64, len(rows))
	perTree := make([]float64, len(rows))
	for _, t := range f.trees {
		for i, row := range rows {
			perTree[i] = t.predict(row)
		}
		floats.Add(out, perTree)
	}
	floats.Scale(1/float64(len(f.trees)), out)
	return out, nil
}

func matrixRows(X mat.Matrix) ([][]float64, error) {
	if X == nil {
		return nil, errors.New("forest: nil feature matrix")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.New("forest: empty feature matrix")
	}
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
		if floats.HasNaN(rows[i]) {
			return nil, fmt.Errorf("forest: row %d contains NaN", i)
		}
	}
	return rows, nil
}
