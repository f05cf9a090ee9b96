package domain

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage is the lifecycle label attached to a model version.
// The zero value is the unset stage.
type Stage string

const (
	StageNone       Stage = ""
	StageStaging    Stage = "Staging"
	StageProduction Stage = "Production"
	StageArchived   Stage = "Archived"
)

// ErrInvalidStage is returned for labels the registry does not recognize.
var ErrInvalidStage = errors.New("invalid stage")

// ParseStage canonicalizes a stage label. Matching is case-insensitive and
// "None" is accepted as the unset stage.
func ParseStage(raw string) (Stage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return StageNone, nil
	}
	canonical := cases.Title(language.Und).String(strings.ToLower(trimmed))
	switch Stage(canonical) {
	case StageStaging, StageProduction, StageArchived:
		return Stage(canonical), nil
	case "None":
		return StageNone, nil
	default:
		return StageNone, fmt.Errorf("%w: %q", ErrInvalidStage, raw)
	}
}

// IsSet reports whether the stage carries a lifecycle label.
func (s Stage) IsSet() bool {
	return s != StageNone
}

func (s Stage) Valid() bool {
	switch s {
	case StageNone, StageStaging, StageProduction, StageArchived:
		return true
	default:
		return false
	}
}

// String renders the unset stage as "None", matching the registry wire format.
func (s Stage) String() string {
	if s == StageNone {
		return "None"
	}
	return string(s)
}

// AllStages lists the stage buckets in registry order.
func AllStages() []Stage {
	return []Stage{StageNone, StageStaging, StageProduction, StageArchived}
}
