package forest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func stepData() (*mat.Dense, []float64) {
	n := 40
	data := make([]float64, 0, n*2)
	y := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		x0 := float64(i)
		x1 := float64(i % 3)
		data = append(data, x0, x1)
		if x0 < 20 {
			y = append(y, 1)
		} else {
			y = append(y, 5)
		}
	}
	return mat.NewDense(n, 2, data), y
}

func testParams() Params {
	p := DefaultParams()
	p.NEstimators = 10
	p.MaxDepth = 10
	p.NJobs = 2
	return p
}

func TestTreeWithoutBootstrapFitsStepExactly(t *testing.T) {
	X, y := stepData()
	rows, err := matrixRows(X)
	if err != nil {
		t.Fatalf("matrixRows() err=%v", err)
	}
	p := testParams()
	p.Bootstrap = false
	tree := fitTree(rows, y, p, 1)
	if tree.Depth() != 1 {
		t.Fatalf("Depth()=%d want 1", tree.Depth())
	}
	root := tree.Nodes[0]
	if root.Feature != 0 || root.Threshold != 19.5 {
		t.Fatalf("root split=%+v", root)
	}
	for i, row := range rows {
		if got := tree.predict(row); got != y[i] {
			t.Fatalf("predict(row %d)=%v want %v", i, got, y[i])
		}
	}
}

func TestMaxDepthIsRespected(t *testing.T) {
	n := 64
	data := make([]float64, n)
	y := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
		y[i] = float64(i * i)
	}
	p := testParams()
	p.MaxDepth = 3
	f, err := New(p)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if err := f.Fit(context.Background(), mat.NewDense(n, 1, data), y); err != nil {
		t.Fatalf("Fit() err=%v", err)
	}
	for _, tree := range f.Trees() {
		if d := tree.Depth(); d > 3 {
			t.Fatalf("tree depth %d exceeds 3", d)
		}
	}
}

func TestFitIsDeterministic(t *testing.T) {
	X, y := stepData()
	var preds [2][]float64
	for i, jobs := range []int{1, 4} {
		p := testParams()
		p.NJobs = jobs
		f, err := New(p)
		if err != nil {
			t.Fatalf("New() err=%v", err)
		}
		if err := f.Fit(context.Background(), X, y); err != nil {
			t.Fatalf("Fit() err=%v", err)
		}
		preds[i], err = f.Predict(X)
		if err != nil {
			t.Fatalf("Predict() err=%v", err)
		}
	}
	for i := range preds[0] {
		if preds[0][i] != preds[1][i] {
			t.Fatalf("prediction %d differs across worker counts: %v vs %v", i, preds[0][i], preds[1][i])
		}
	}
}

func TestPredictionsTrackTarget(t *testing.T) {
	X, y := stepData()
	f, _ := New(testParams())
	if err := f.Fit(context.Background(), X, y); err != nil {
		t.Fatalf("Fit() err=%v", err)
	}
	pred, err := f.Predict(mat.NewDense(2, 2, []float64{2, 0, 35, 1}))
	if err != nil {
		t.Fatalf("Predict() err=%v", err)
	}
	if math.Abs(pred[0]-1) > 0.5 || math.Abs(pred[1]-5) > 0.5 {
		t.Fatalf("pred=%v", pred)
	}
}

func TestProgressCallback(t *testing.T) {
	X, y := stepData()
	var calls, last int
	f, _ := New(testParams(), WithProgress(func(done, total int) {
		calls++
		last = done
		if total != 10 {
			t.Errorf("total=%d", total)
		}
	}))
	if err := f.Fit(context.Background(), X, y); err != nil {
		t.Fatalf("Fit() err=%v", err)
	}
	if calls != 10 || last != 10 {
		t.Fatalf("calls=%d last=%d", calls, last)
	}
}

func TestFitHonorsCancellation(t *testing.T) {
	X, y := stepData()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f, _ := New(testParams())
	if err := f.Fit(ctx, X, y); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := f.Predict(X); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
}

func TestFitRejectsMismatchedTargets(t *testing.T) {
	X, _ := stepData()
	f, _ := New(testParams())
	if err := f.Fit(context.Background(), X, []float64{1, 2}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	p.MaxFeatures = 0
	if _, err := New(p); err == nil {
		t.Fatalf("expected error for max_features=0")
	}
	m := DefaultParams().Map()
	if m["max_depth"] != "None" || m["n_estimators"] != "100" {
		t.Fatalf("Map()=%v", m)
	}
}

func TestCodecRoundTripPreservesPredictions(t *testing.T) {
	X, y := stepData()
	f, _ := New(testParams())
	if err := f.Fit(context.Background(), X, y); err != nil {
		t.Fatalf("Fit() err=%v", err)
	}
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		t.Fatalf("Encode() err=%v", err)
	}
	g, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode() err=%v", err)
	}
	want, _ := f.Predict(X)
	got, err := g.Predict(X)
	if err != nil {
		t.Fatalf("Predict() err=%v", err)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("prediction %d: %v vs %v", i, got[i], want[i])
		}
	}
}
