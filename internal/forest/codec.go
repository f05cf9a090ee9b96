package forest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// ArtifactFormat identifies the serialized model layout.
const ArtifactFormat = "animus.forest.v1"

type artifact struct {
	Format    string  `json:"format"`
	Params    Params  `json:"params"`
	NFeatures int     `json:"n_features"`
	Trees     []*Tree `json:"trees"`
}

// Encode writes the fitted model as zstd-compressed JSON.
func (f *RandomForestRegressor) Encode(w io.Writer) error {
	if f == nil || len(f.trees) == 0 {
		return ErrNotFitted
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	payload := artifact{Format: ArtifactFormat, Params: f.params, NFeatures: f.nFeatures, Trees: f.trees}
	if err := json.NewEncoder(zw).Encode(payload); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode forest: %w", err)
	}
	return zw.Close()
}

func Decode(r io.Reader) (*RandomForestRegressor, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var payload artifact
	if err := json.NewDecoder(zr).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if payload.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported forest format %q", payload.Format)
	}
	if len(payload.Trees) == 0 || payload.NFeatures < 1 {
		return nil, ErrNotFitted
	}
	return &RandomForestRegressor{params: payload.Params, nFeatures: payload.NFeatures, trees: payload.Trees}, nil
}
