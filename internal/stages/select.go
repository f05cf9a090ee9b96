package stages

import (
	"fmt"
	"slices"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/domain"
)

// Select returns the first version in versions whose stage is unset,
// paired with the Staging destination. ok is false when every version
// already has a stage.
func Select(versions []domain.ModelVersion) (version int64, stage domain.Stage, ok bool) {
	for _, v := range versions {
		if !v.CurrentStage.IsSet() {
			return v.Version, domain.StageStaging, true
		}
	}
	return 0, domain.StageNone, false
}

// Order controls how latest versions are arranged before selection.
type Order string

const (
	// OrderVersion sorts by ascending version number.
	OrderVersion Order = "version"
	// OrderRegistry keeps the order the registry returned.
	OrderRegistry Order = "registry"
)

func ParseOrder(raw string) (Order, error) {
	switch Order(strings.ToLower(strings.TrimSpace(raw))) {
	case "", OrderVersion:
		return OrderVersion, nil
	case OrderRegistry:
		return OrderRegistry, nil
	}
	return "", fmt.Errorf("unknown order %q (want %s or %s)", raw, OrderVersion, OrderRegistry)
}

// Sort returns a copy of versions arranged by order.
func Sort(versions []domain.ModelVersion, order Order) []domain.ModelVersion {
	out := slices.Clone(versions)
	if order == OrderRegistry {
		return out
	}
	slices.SortStableFunc(out, func(a, b domain.ModelVersion) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})
	return out
}
