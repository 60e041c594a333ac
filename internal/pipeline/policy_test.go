package pipeline

import (
	"context"
	"testing"

	"hirepipe/pkg/rbac"
)

func TestRolePolicy(t *testing.T) {
	f := newFixture(t)
	hr := Actor{UserID: 10, Role: rbac.RoleHRManager}
	super := Actor{UserID: 11, Role: rbac.RoleViewer, IsSuperuser: true}

	cases := []struct {
		name      string
		actor     Actor
		read, wrt bool
	}{
		{"admin", admin, true, true},
		{"hr manager", hr, true, true},
		{"superuser", super, true, true},
		{"recruiter member", recruiter, true, true},
		{"viewer member", viewer, true, false},
		{"non member", outsider, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.store.WithSnapshot(context.Background(), func(ctx context.Context, tx Tx) error {
				read, err := RolePolicy{}.CanRead(ctx, tx, tc.actor, f.project)
				if err != nil {
					return err
				}
				wrt, err := RolePolicy{}.CanWrite(ctx, tx, tc.actor, f.project)
				if err != nil {
					return err
				}
				if read != tc.read || wrt != tc.wrt {
					t.Errorf("read=%v write=%v, want read=%v write=%v", read, wrt, tc.read, tc.wrt)
				}
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestUnassignedCandidatesAreVisibleToEveryone(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddProject("Other", admin.UserID)
	f.store.AddStage(other, "new", "New", 1, false)

	unassigned := f.candidate("free")
	claimed := f.candidate("claimed")
	if _, err := f.svc.CreateApplication(context.Background(), admin, CreateInput{ProjectID: other, CandidateID: claimed}); err != nil {
		t.Fatal(err)
	}

	err := f.store.WithSnapshot(context.Background(), func(ctx context.Context, tx Tx) error {
		for _, tc := range []struct {
			cand int64
			want bool
		}{{unassigned, true}, {claimed, false}} {
			got, err := RolePolicy{}.CanSeeCandidate(ctx, tx, recruiter, tc.cand)
			if err != nil {
				return err
			}
			if got != tc.want {
				t.Errorf("candidate %d visible=%v, want %v", tc.cand, got, tc.want)
			}
		}
		got, err := RolePolicy{}.CanSeeCandidate(ctx, tx, admin, claimed)
		if err != nil {
			return err
		}
		if !got {
			t.Error("admin must see every candidate")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// a recruiter of this project cannot pull a candidate claimed elsewhere
	_, err = f.svc.CreateApplication(context.Background(), recruiter, CreateInput{ProjectID: f.project, CandidateID: claimed})
	assertReason(t, err, KindInvalidInput, ReasonCandidateNotFound)
}

func TestWritesCheckReadBeforeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.create(t, f.candidate("a"))

	// outsiders cannot tell the application exists
	_, err := f.svc.MoveApplication(ctx, outsider, card.ID, f.screening.ID)
	assertReason(t, err, KindNotFound, ReasonApplicationNotFound)
	assertReason(t, f.svc.ArchiveApplication(ctx, outsider, card.ID), KindNotFound, ReasonApplicationNotFound)
	_, err = f.svc.ReorderColumn(ctx, outsider, f.project, f.newStage.ID, nil)
	assertReason(t, err, KindNotFound, ReasonProjectNotFound)
	_, err = f.svc.CreateApplication(ctx, outsider, CreateInput{ProjectID: f.project, CandidateID: f.candidate("b")})
	assertReason(t, err, KindInvalidInput, ReasonProjectNotFound)

	// viewers can see but not change
	_, err = f.svc.MoveApplication(ctx, viewer, card.ID, f.screening.ID)
	assertReason(t, err, KindForbidden, ReasonForbidden)
	assertReason(t, f.svc.ArchiveApplication(ctx, viewer, card.ID), KindForbidden, ReasonForbidden)
	_, err = f.svc.ReorderColumn(ctx, viewer, f.project, f.newStage.ID, nil)
	assertReason(t, err, KindForbidden, ReasonForbidden)
	_, err = f.svc.CreateApplication(ctx, viewer, CreateInput{ProjectID: f.project, CandidateID: f.candidate("c")})
	assertReason(t, err, KindForbidden, ReasonForbidden)

	if _, err := f.svc.Board(ctx, viewer, f.project); err != nil {
		t.Fatalf("viewer board: %v", err)
	}
	_, err = f.svc.Board(ctx, outsider, f.project)
	assertReason(t, err, KindNotFound, ReasonProjectNotFound)
}

func TestWritesCheckExistenceBeforePermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.create(t, f.candidate("a"))
	missingStage := int64(424242)

	_, err := f.svc.CreateApplication(ctx, viewer, CreateInput{ProjectID: f.project, CandidateID: 99999})
	assertReason(t, err, KindInvalidInput, ReasonCandidateNotFound)
	_, err = f.svc.CreateApplication(ctx, viewer, CreateInput{
		ProjectID:   f.project,
		CandidateID: f.candidate("b"),
		Stage:       StageRef{SystemKey: "nope"},
	})
	assertReason(t, err, KindInvalidInput, ReasonStageNotFound)
	_, err = f.svc.MoveApplication(ctx, viewer, card.ID, missingStage)
	assertReason(t, err, KindInvalidInput, ReasonStageNotFound)
	_, err = f.svc.ReorderColumn(ctx, viewer, f.project, missingStage, nil)
	assertReason(t, err, KindInvalidInput, ReasonStageNotFound)

	if got := f.column(t, f.newStage.ID); !equalSlices(ids(got), []int64{card.ID}) {
		t.Fatalf("column changed: %v", ids(got))
	}
}

func TestListApplicationsScopedByMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.store.AddProject("Other", admin.UserID)
	f.store.AddStage(other, "new", "New", 1, false)

	mine := f.create(t, f.candidate("a"))
	if _, err := f.svc.CreateApplication(ctx, admin, CreateInput{ProjectID: other, CandidateID: f.candidate("b")}); err != nil {
		t.Fatal(err)
	}

	all, err := f.svc.ListApplications(ctx, admin, ApplicationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("admin sees %d, want 2", len(all))
	}

	scoped, err := f.svc.ListApplications(ctx, recruiter, ApplicationFilter{MemberOf: nil})
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].ID != mine.ID {
		t.Fatalf("recruiter sees %+v", scoped)
	}

	none, err := f.svc.ListApplications(ctx, outsider, ApplicationFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("outsider sees %d applications", len(none))
	}
}

func TestListApplicationsFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))
	if _, err := f.svc.MoveApplication(ctx, admin, b.ID, f.screening.ID); err != nil {
		t.Fatal(err)
	}
	c := f.create(t, f.candidate("c"))
	if err := f.svc.ArchiveApplication(ctx, admin, c.ID); err != nil {
		t.Fatal(err)
	}

	live, _ := f.svc.ListApplications(ctx, admin, ApplicationFilter{ProjectID: &f.project})
	// most recently updated first: b was moved after a was created
	if len(live) != 2 || live[0].ID != b.ID || live[1].ID != a.ID {
		t.Fatalf("live order: %+v", live)
	}

	inNew, _ := f.svc.ListApplications(ctx, admin, ApplicationFilter{StageID: &f.newStage.ID})
	if len(inNew) != 1 || inNew[0].ID != a.ID {
		t.Fatalf("stage filter: %+v", inNew)
	}

	archived := true
	arch, _ := f.svc.ListApplications(ctx, admin, ApplicationFilter{IsArchived: &archived})
	if len(arch) != 1 || arch[0].ID != c.ID {
		t.Fatalf("archived filter: %+v", arch)
	}

	byCand, _ := f.svc.ListApplications(ctx, admin, ApplicationFilter{CandidateID: &a.CandidateID})
	if len(byCand) != 1 || byCand[0].ID != a.ID {
		t.Fatalf("candidate filter: %+v", byCand)
	}
}

func TestUnknownMemberRoleIsNoMembership(t *testing.T) {
	f := newFixture(t)
	f.store.AddMember(f.project, outsider.UserID, rbac.MemberRole("GUEST"))

	_, err := f.svc.Board(context.Background(), outsider, f.project)
	assertReason(t, err, KindNotFound, ReasonProjectNotFound)
}
