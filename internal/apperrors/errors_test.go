package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	cause := errors.New("unique constraint")
	err := New(KindConflict, "notes.add_favorite", "already_favourited", cause)

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict error to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("conflict error must not match ErrNotFound")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to remain reachable")
	}
	if err.Code() != "notes.add_favorite.already_favourited" {
		t.Fatalf("unexpected code %q", err.Code())
	}
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(KindNotFound, "notes.get", "note_missing", nil))
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not found kind, got %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("expected plain errors to be internal")
	}
}

func TestMessageFallsBackToKindDefault(t *testing.T) {
	err := New(KindUpstream, "storage.sign", "signing_failed", nil)
	if err.Message() != "upstream service unavailable" {
		t.Fatalf("unexpected default message %q", err.Message())
	}
	custom := New(KindConflict, "subjects.create", "duplicate", nil).WithMessage("Duplicate subject exists")
	if custom.Message() != "Duplicate subject exists" {
		t.Fatalf("unexpected custom message %q", custom.Message())
	}
	if custom.Code() != "subjects.create.duplicate" {
		t.Fatalf("custom message must keep the code, got %q", custom.Code())
	}
}
