package domain

import (
	"errors"
	"testing"
)

func TestValidateGrant_Valid(t *testing.T) {
	g := Grant{ExternalID: "BDNS-123456", Title: "Ayuda a la digitalización de pymes"}
	if err := ValidateGrant(g); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestValidateGrant_MissingFields(t *testing.T) {
	if err := ValidateGrant(Grant{Title: "x"}); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField for missing external_id, got %v", err)
	}
	if err := ValidateGrant(Grant{ExternalID: "x"}); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField for missing title, got %v", err)
	}
}

func TestValidateStagingItem_Valid(t *testing.T) {
	s := StagingItem{ExternalID: "BDNS-1", Stage: StageFetch, Status: StatusPending}
	if err := ValidateStagingItem(s); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
}

func TestValidateStagingItem_InvalidStage(t *testing.T) {
	s := StagingItem{ExternalID: "BDNS-1", Stage: "bogus", Status: StatusPending}
	if err := ValidateStagingItem(s); !errors.Is(err, ErrInvalidStage) {
		t.Errorf("expected ErrInvalidStage, got %v", err)
	}
}

func TestValidateStagingItem_InvalidStatus(t *testing.T) {
	s := StagingItem{ExternalID: "BDNS-1", Stage: StageFetch, Status: "bogus"}
	if err := ValidateStagingItem(s); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestNextStage(t *testing.T) {
	cases := []struct {
		from Stage
		want Stage
		ok   bool
	}{
		{StageFetch, StagePDF, true},
		{StagePDF, StageLLM, true},
		{StageLLM, StageEmbed, true},
		{StageEmbed, "", false},
	}
	for _, c := range cases {
		got, ok := NextStage(c.from)
		if ok != c.ok || got != c.want {
			t.Errorf("NextStage(%s) = (%s, %v), want (%s, %v)", c.from, got, ok, c.want, c.ok)
		}
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusPending, StatusProcessing) {
		t.Error("pending -> processing should be allowed")
	}
	if CanTransition(StatusPending, StatusCompleted) {
		t.Error("pending -> completed should be rejected (must pass through processing)")
	}
	for _, to := range []Status{StatusCompleted, StatusFailed, StatusSkipped} {
		if !CanTransition(StatusProcessing, to) {
			t.Errorf("processing -> %s should be allowed", to)
		}
	}
	if CanTransition(StatusProcessing, StatusProcessing) {
		t.Error("processing -> processing should be rejected")
	}
	if CanTransition(StatusCompleted, StatusPending) {
		t.Error("transitions out of a terminal state should be rejected")
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	ve := NewValidationError("external_id", "", ErrMissingField)
	if !errors.Is(ve, ErrMissingField) {
		t.Error("Unwrap should expose ErrMissingField")
	}
	var target *ValidationError
	if !errors.As(ve, &target) {
		t.Error("errors.As should work for *ValidationError")
	}
	if target.Field != "external_id" {
		t.Errorf("expected field=external_id, got %s", target.Field)
	}
}
