package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("create order: %w", Invalid("items", "at least one item is required"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected wrapped validation error to match ErrValidation, got %v", err)
	}

	var verr ValidationError
	if !errors.As(err, &verr) || verr.Field != "items" {
		t.Fatalf("expected ValidationError for field items, got %#v", verr)
	}
	if verr.Error() != "items: at least one item is required" {
		t.Fatalf("unexpected message %q", verr.Error())
	}
}

func TestStateErrorMatchesInvalidState(t *testing.T) {
	err := StateError{From: "cancelled", To: "shipped", Reason: "cancelled is terminal"}
	if !errors.Is(err, ErrInvalidState) {
		t.Fatal("expected StateError to match ErrInvalidState")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("StateError must not match ErrConflict")
	}
}
