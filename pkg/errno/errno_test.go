package errno

import (
	"errors"
	"fmt"
	"testing"
)

func TestWithKeepsIdentity(t *testing.T) {
	err := ErrInvalidReference.With("not a pull request url: %s", "https://example.com")
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected errors.Is to match ErrInvalidReference")
	}
	if err.Error() != "invalid change request reference: not a pull request url: https://example.com" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestWrapAndFrom(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("stage analyzing: %w", ErrSourceFetch.Wrap(cause))

	e, ok := From(err)
	if !ok {
		t.Fatal("expected From to find an Errno")
	}
	if e != ErrSourceFetch {
		t.Errorf("expected ErrSourceFetch, got %v", e.Code)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to stay in chain")
	}
}

func TestFromPlainError(t *testing.T) {
	if _, ok := From(errors.New("plain")); ok {
		t.Error("plain errors must not resolve to an Errno")
	}
}
