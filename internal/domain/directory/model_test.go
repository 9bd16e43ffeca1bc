package directory

import (
	"testing"

	"github.com/google/uuid"
)

func TestGuestDescriptor_DedupKey(t *testing.T) {
	email := "Front-Desk@Lakeside.example"
	a := GuestDescriptor{Name: "Lakeside Clinic", Email: &email}
	lower := "front-desk@lakeside.example"
	b := GuestDescriptor{Name: "  lakeside clinic ", Email: &lower}
	if a.dedupKey() != b.dedupKey() {
		t.Errorf("expected matching keys, got %q and %q", a.dedupKey(), b.dedupKey())
	}

	c := GuestDescriptor{Name: "Lakeside Clinic"}
	if a.dedupKey() == c.dedupKey() {
		t.Error("expected different keys when email differs")
	}
}

func TestResolvedTargets_Empty(t *testing.T) {
	var r ResolvedTargets
	if !r.Empty() {
		t.Error("expected zero value to be empty")
	}
	r.DepartmentIDs = []uuid.UUID{uuid.New()}
	if r.Empty() {
		t.Error("expected non-empty with a department id")
	}
	r = ResolvedTargets{Guests: []GuestDescriptor{{Name: "Lakeside Clinic"}}}
	if r.Empty() {
		t.Error("expected non-empty with a guest")
	}
}
