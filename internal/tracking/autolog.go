package tracking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"reflect"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/evaluation"
	"gonum.org/v1/gonum/mat"
)

const (
	// ModelArtifactPath is where Fit stores the serialized estimator.
	ModelArtifactPath = "model/model.json.zst"

	TagEstimatorName  = "estimator_name"
	TagEstimatorClass = "estimator_class"
)

// Estimator is a regression model autolog can record.
type Estimator interface {
	Name() string
	Params() map[string]string
	Fit(ctx context.Context, X mat.Matrix, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
	Encode(w io.Writer) error
}

// Autolog records an estimator's params, training metrics and model
// artifact into a run without the caller logging anything itself.
type Autolog struct {
	run      *ActiveRun
	est      Estimator
	modelURI string
}

func (r *ActiveRun) Autolog(est Estimator) *Autolog {
	return &Autolog{run: r, est: est}
}

// ModelURI is the artifact URI of the model directory once Fit succeeded.
func (a *Autolog) ModelURI() string {
	return a.modelURI
}

// Fit logs the estimator params, fits it, then logs training metrics, the
// model artifact and estimator tags.
func (a *Autolog) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	if a == nil || a.run == nil || a.est == nil {
		return errors.New("autolog not initialized")
	}
	if err := a.run.LogParams(ctx, a.est.Params()); err != nil {
		return err
	}
	if err := a.est.Fit(ctx, X, y); err != nil {
		return err
	}

	pred, err := a.est.Predict(X)
	if err != nil {
		return fmt.Errorf("predict training split: %w", err)
	}
	rmse, err := evaluation.RMSE(y, pred)
	if err != nil {
		return err
	}
	mae, err := evaluation.MAE(y, pred)
	if err != nil {
		return err
	}
	r2, err := evaluation.R2(y, pred)
	if err != nil {
		return err
	}
	err = a.run.LogMetrics(ctx, map[string]float64{
		"training_root_mean_squared_error": rmse,
		"training_mean_absolute_error":     mae,
		"training_r2_score":                r2,
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := a.est.Encode(&buf); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	art, err := a.run.LogArtifact(ctx, ModelArtifactPath, buf.Bytes(), "application/zstd")
	if err != nil {
		return err
	}
	a.modelURI = strings.TrimSuffix(art.URI, "/"+path.Base(ModelArtifactPath))

	return a.run.SetTags(ctx, map[string]string{
		TagEstimatorName:  a.est.Name(),
		TagEstimatorClass: estimatorClass(a.est),
	})
}

// RMSE predicts X and logs the root mean squared error against y as
// {split}_root_mean_squared_error.
func (a *Autolog) RMSE(ctx context.Context, split string, X mat.Matrix, y []float64) (float64, error) {
	if a == nil || a.run == nil || a.est == nil {
		return 0, errors.New("autolog not initialized")
	}
	pred, err := a.est.Predict(X)
	if err != nil {
		return 0, fmt.Errorf("predict %s split: %w", split, err)
	}
	rmse, err := evaluation.RMSE(y, pred)
	if err != nil {
		return 0, fmt.Errorf("%s rmse: %w", split, err)
	}
	if err := a.run.LogMetric(ctx, split+"_root_mean_squared_error", rmse); err != nil {
		return 0, err
	}
	return rmse, nil
}

func estimatorClass(est Estimator) string {
	t := reflect.TypeOf(est)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
