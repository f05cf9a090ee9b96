// Package dataset reads the pickled (X, y) splits consumed by the trainer.
//
// Each split is a pickle holding a 2-tuple whose first element is a list of
// feature rows and whose second element is a list of targets. Only plain
// Python lists, tuples, ints, floats and bools are understood; a pickle that
// references any other class, such as a NumPy array, fails with
// ErrUnsupported.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
	"gonum.org/v1/gonum/mat"
)

var ErrUnsupported = errors.New("dataset: unsupported pickle content")

type Split string

const (
	SplitTrain      Split = "train"
	SplitValidation Split = "val"
	SplitTest       Split = "test"
)

// Filename is the pickle file name a split is stored under.
func (s Split) Filename() string {
	return string(s) + ".pkl"
}

// Pair is one (X, y) split.
type Pair struct {
	X *mat.Dense
	Y []float64
}

func (p Pair) Rows() int {
	return len(p.Y)
}

// Splits holds the three splits the trainer evaluates.
type Splits struct {
	Train      Pair
	Validation Pair
	Test       Pair
}

// Decode unpickles a single (X, y) pair.
func Decode(r io.Reader) (Pair, error) {
	u := pickle.NewUnpickler(r)
	var foreign string
	u.FindClass = func(module, name string) (interface{}, error) {
		foreign = module + "." + name
		return nil, fmt.Errorf("%w: class %s", ErrUnsupported, foreign)
	}
	obj, err := u.Load()
	if err != nil {
		if foreign != "" {
			return Pair{}, fmt.Errorf("%w: pickle references %s, want plain lists (convert arrays with .tolist())", ErrUnsupported, foreign)
		}
		return Pair{}, fmt.Errorf("unpickle: %w", err)
	}
	pair, ok := sequence(obj)
	if !ok || len(pair) != 2 {
		return Pair{}, fmt.Errorf("%w: expected (X, y) tuple, got %T", ErrUnsupported, obj)
	}

	rawRows, ok := sequence(pair[0])
	if !ok {
		return Pair{}, fmt.Errorf("%w: X is %T, want list of rows", ErrUnsupported, pair[0])
	}
	y, err := vector(pair[1])
	if err != nil {
		return Pair{}, fmt.Errorf("y: %w", err)
	}
	if len(rawRows) == 0 {
		return Pair{}, errors.New("dataset: X has no rows")
	}
	if len(rawRows) != len(y) {
		return Pair{}, fmt.Errorf("dataset: X has %d rows but y has %d values", len(rawRows), len(y))
	}

	var cols int
	var data []float64
	for i, raw := range rawRows {
		row, err := vector(raw)
		if err != nil {
			return Pair{}, fmt.Errorf("X row %d: %w", i, err)
		}
		if i == 0 {
			cols = len(row)
			if cols == 0 {
				return Pair{}, errors.New("dataset: X rows have no features")
			}
			data = make([]float64, 0, len(rawRows)*cols)
		} else if len(row) != cols {
			return Pair{}, fmt.Errorf("dataset: X row %d has %d features, want %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return Pair{X: mat.NewDense(len(rawRows), cols, data), Y: y}, nil
}

// Load reads one split from src.
func Load(ctx context.Context, src Source, split Split) (Pair, error) {
	rc, err := src.Open(ctx, split.Filename())
	if err != nil {
		return Pair{}, fmt.Errorf("open %s split: %w", split, err)
	}
	defer func() { _ = rc.Close() }()
	pair, err := Decode(rc)
	if err != nil {
		return Pair{}, fmt.Errorf("load %s split from %s: %w", split, src, err)
	}
	return pair, nil
}

// LoadAll reads the train, validation and test splits and checks that they
// share a feature count.
func LoadAll(ctx context.Context, src Source) (Splits, error) {
	var out Splits
	targets := []struct {
		split Split
		dst   *Pair
	}{
		{SplitTrain, &out.Train},
		{SplitValidation, &out.Validation},
		{SplitTest, &out.Test},
	}
	for _, t := range targets {
		p, err := Load(ctx, src, t.split)
		if err != nil {
			return Splits{}, err
		}
		*t.dst = p
	}
	_, want := out.Train.X.Dims()
	for _, t := range targets[1:] {
		if _, c := t.dst.X.Dims(); c != want {
			return Splits{}, fmt.Errorf("dataset: %s split has %d features, train has %d", t.split, c, want)
		}
	}
	return out, nil
}

func sequence(obj interface{}) ([]interface{}, bool) {
	switch v := obj.(type) {
	case *types.Tuple:
		return []interface{}(*v), true
	case types.Tuple:
		return []interface{}(v), true
	case *types.List:
		return []interface{}(*v), true
	case types.List:
		return []interface{}(v), true
	case []interface{}:
		return v, true
	}
	return nil, false
}

func vector(obj interface{}) ([]float64, error) {
	items, ok := sequence(obj)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a list", ErrUnsupported, obj)
	}
	out := make([]float64, len(items))
	for i, item := range items {
		f, err := number(item)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func number(obj interface{}) (float64, error) {
	var f float64
	switch v := obj.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case bool:
		if v {
			f = 1
		}
	case *big.Int:
		f, _ = new(big.Float).SetInt(v).Float64()
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrUnsupported, obj)
	}
	if math.IsNaN(f) {
		return 0, errors.New("dataset: NaN value")
	}
	return f, nil
}
