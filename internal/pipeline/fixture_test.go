package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"hirepipe/pkg/rbac"
)

var (
	admin     = Actor{UserID: 1, Role: rbac.RoleAdmin}
	recruiter = Actor{UserID: 2, Role: rbac.RoleRecruiter}
	viewer    = Actor{UserID: 3, Role: rbac.RoleRecruiter}
	outsider  = Actor{UserID: 4, Role: rbac.RoleRecruiter}
)

type fixture struct {
	store     *MemoryStore
	svc       *Service
	project   int64
	newStage  Stage
	screening Stage
}

// newFixture builds a project with stages [new(1), screening(2)], a
// RECRUITER member (user 2) and a VIEWER member (user 3).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := NewMemoryStore()
	f := &fixture{store: store, svc: NewService(store, zap.NewNop())}
	f.project = store.AddProject("Backend engineer", admin.UserID)
	f.newStage = store.AddStage(f.project, "new", "New", 1, false)
	f.screening = store.AddStage(f.project, "screening", "Screening", 2, false)
	store.AddMember(f.project, recruiter.UserID, rbac.MemberRecruiter)
	store.AddMember(f.project, viewer.UserID, rbac.MemberViewer)
	return f
}

func (f *fixture) candidate(name string) int64 {
	return f.store.AddCandidate(CandidateSummary{FullName: name, Email: name + "@example.com", Skills: []string{"go"}})
}

func (f *fixture) create(t *testing.T, candidateID int64) *Card {
	t.Helper()
	card, err := f.svc.CreateApplication(context.Background(), admin, CreateInput{ProjectID: f.project, CandidateID: candidateID})
	if err != nil {
		t.Fatalf("create application for candidate %d: %v", candidateID, err)
	}
	return card
}

func (f *fixture) column(t *testing.T, stageID int64) []Application {
	t.Helper()
	var col []Application
	err := f.store.WithSnapshot(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		col, err = tx.ListColumn(ctx, f.project, stageID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return col
}

func (f *fixture) history(t *testing.T, appID int64) []StageChangeEvent {
	t.Helper()
	events, err := f.svc.History(context.Background(), admin, appID)
	if err != nil {
		t.Fatalf("history %d: %v", appID, err)
	}
	return events
}

func assertReason(t *testing.T, err error, kind Kind, reason string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s, got nil", kind, reason)
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if pe.Kind != kind || pe.Reason != reason {
		t.Fatalf("expected %s/%s, got %s/%s (%v)", kind, reason, pe.Kind, pe.Reason, err)
	}
}

func ids(apps []Application) []int64 {
	out := make([]int64, len(apps))
	for i, a := range apps {
		out[i] = a.ID
	}
	return out
}

func positions(apps []Application) []int {
	out := make([]int, len(apps))
	for i, a := range apps {
		out[i] = a.Position
	}
	return out
}

func equalSlices[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
