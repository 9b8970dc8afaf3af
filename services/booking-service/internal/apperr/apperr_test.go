package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := Conflict("slot %s taken", "08:00")
	err := fmt.Errorf("book: %w", base)
	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict, got %s", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors should be internal")
	}
	if PublicMessage(err) != "slot 08:00 taken" {
		t.Fatalf("unexpected message %q", PublicMessage(err))
	}
	if PublicMessage(Wrap(KindInternal, errors.New("pq: secret"), "db")) != "internal error" {
		t.Fatal("internal causes must not leak")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:        http.StatusBadRequest,
		KindSlotUnavailable:   http.StatusConflict,
		KindInvalidTransition: http.StatusConflict,
		KindNotFound:          http.StatusNotFound,
		KindForbidden:         http.StatusForbidden,
		KindExternalService:   http.StatusBadGateway,
		KindInternal:          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Fatalf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
