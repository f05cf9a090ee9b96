package domain

import (
	"errors"
	"testing"
)

func TestParseStageCanonicalizes(t *testing.T) {
	cases := map[string]Stage{
		"staging":    StageStaging,
		"STAGING":    StageStaging,
		" Staging ":  StageStaging,
		"production": StageProduction,
		"archived":   StageArchived,
		"None":       StageNone,
		"none":       StageNone,
		"":           StageNone,
	}
	for raw, want := range cases {
		got, err := ParseStage(raw)
		if err != nil {
			t.Fatalf("ParseStage(%q) err=%v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseStage(%q)=%q, want %q", raw, got, want)
		}
	}
}

func TestParseStageRejectsUnknown(t *testing.T) {
	_, err := ParseStage("canary")
	if !errors.Is(err, ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage, got %v", err)
	}
}

func TestStageString(t *testing.T) {
	if StageNone.String() != "None" {
		t.Fatalf("unset stage renders %q", StageNone.String())
	}
	if StageStaging.String() != "Staging" {
		t.Fatalf("staging renders %q", StageStaging.String())
	}
	if StageNone.IsSet() || !StageArchived.IsSet() {
		t.Fatalf("unexpected IsSet results")
	}
}

func TestStageTransitionRequestValidate(t *testing.T) {
	if err := (StageTransitionRequest{Version: 1, Stage: StageStaging}).Validate(); err == nil {
		t.Fatalf("expected error for missing model name")
	}
	if err := (StageTransitionRequest{ModelName: "model", Version: 1, Stage: StageStaging}).Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
}
