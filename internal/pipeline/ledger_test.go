package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCreateAppendsToDefaultStage(t *testing.T) {
	f := newFixture(t)
	c1 := f.create(t, f.candidate("ann"))
	c2 := f.create(t, f.candidate("bob"))

	if c1.CurrentStageID != f.newStage.ID || c1.Position != 1 {
		t.Fatalf("first card: stage=%d pos=%d", c1.CurrentStageID, c1.Position)
	}
	if c2.Position != 2 {
		t.Fatalf("second card position = %d, want 2", c2.Position)
	}
	if c1.Candidate.FullName != "ann" || len(c1.Candidate.Skills) != 1 {
		t.Fatalf("candidate summary not attached: %+v", c1.Candidate)
	}

	events := f.history(t, c1.ID)
	if len(events) != 1 || events[0].FromStageID != nil || events[0].ToStageID != f.newStage.ID {
		t.Fatalf("unexpected creation events: %+v", events)
	}
	if events[0].ChangedBy == nil || *events[0].ChangedBy != admin.UserID {
		t.Fatalf("creation event actor not recorded: %+v", events[0])
	}
}

func TestCreateWithExplicitStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	byKey, err := f.svc.CreateApplication(ctx, admin, CreateInput{
		ProjectID: f.project, CandidateID: f.candidate("ann"), Stage: StageRef{SystemKey: "screening"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if byKey.CurrentStageID != f.screening.ID || byKey.Position != 1 {
		t.Fatalf("by key: %+v", byKey.Application)
	}

	id := f.screening.ID
	byID, err := f.svc.CreateApplication(ctx, admin, CreateInput{
		ProjectID: f.project, CandidateID: f.candidate("bob"), Stage: StageRef{ID: &id},
	})
	if err != nil {
		t.Fatal(err)
	}
	if byID.CurrentStageID != f.screening.ID || byID.Position != 2 {
		t.Fatalf("by id: %+v", byID.Application)
	}
}

func TestCreateRejectsForeignStage(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddProject("Other", admin.UserID)
	foreign := f.store.AddStage(other, "new", "New", 1, false)

	_, err := f.svc.CreateApplication(context.Background(), admin, CreateInput{
		ProjectID: f.project, CandidateID: f.candidate("ann"), Stage: StageRef{ID: &foreign.ID},
	})
	assertReason(t, err, KindInvalidInput, ReasonStageNotFound)
	if len(f.store.Messages()) != 0 {
		t.Fatal("failed create must not enqueue events")
	}
}

func TestCreateWithoutStages(t *testing.T) {
	f := newFixture(t)
	empty := f.store.AddProject("Empty", admin.UserID)
	_, err := f.svc.CreateApplication(context.Background(), admin, CreateInput{ProjectID: empty, CandidateID: f.candidate("ann")})
	assertReason(t, err, KindInvalidInput, ReasonNoStagesConfigured)
}

func TestCreateUnknownReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateApplication(ctx, admin, CreateInput{ProjectID: 999, CandidateID: f.candidate("ann")})
	assertReason(t, err, KindInvalidInput, ReasonProjectNotFound)

	_, err = f.svc.CreateApplication(ctx, admin, CreateInput{ProjectID: f.project, CandidateID: 999})
	assertReason(t, err, KindInvalidInput, ReasonCandidateNotFound)
}

// Positions within a column strictly increase and never collide.
func TestPositionMonotonicity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var cards []*Card
	for _, name := range []string{"a", "b", "c", "d"} {
		cards = append(cards, f.create(t, f.candidate(name)))
	}
	// move b and d away and back: they must land behind everything else
	for _, c := range []*Card{cards[1], cards[3]} {
		if _, err := f.svc.MoveApplication(ctx, admin, c.ID, f.screening.ID); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range []*Card{cards[1], cards[3]} {
		if _, err := f.svc.MoveApplication(ctx, admin, c.ID, f.newStage.ID); err != nil {
			t.Fatal(err)
		}
	}

	col := f.column(t, f.newStage.ID)
	want := []int64{cards[0].ID, cards[2].ID, cards[1].ID, cards[3].ID}
	if !equalSlices(ids(col), want) {
		t.Fatalf("column order = %v, want %v", ids(col), want)
	}
	// no gap filling: a and c keep 1 and 3, returning cards append as 4 and 5
	if !equalSlices(positions(col), []int{1, 3, 4, 5}) {
		t.Fatalf("positions = %v", positions(col))
	}
}

func TestConcurrentCreatesGetDistinctPositions(t *testing.T) {
	f := newFixture(t)
	const n = 20
	candidates := make([]int64, n)
	for i := range candidates {
		candidates[i] = f.candidate("c" + string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, cid := range candidates {
		wg.Add(1)
		go func(cid int64) {
			defer wg.Done()
			_, err := f.svc.CreateApplication(context.Background(), recruiter, CreateInput{ProjectID: f.project, CandidateID: cid})
			errs <- err
		}(cid)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	seen := map[int]bool{}
	for _, a := range f.column(t, f.newStage.ID) {
		if seen[a.Position] {
			t.Fatalf("duplicate position %d", a.Position)
		}
		seen[a.Position] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d cards, got %d", n, len(seen))
	}
}

func TestReorderAppendsUnmentioned(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))
	c := f.create(t, f.candidate("c"))
	d := f.create(t, f.candidate("d"))

	// column order is a,b,c,d; request c,a and expect c,a,b,d
	final, err := f.svc.ReorderColumn(context.Background(), recruiter, f.project, f.newStage.ID, []int64{c.ID, a.ID})
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{c.ID, a.ID, b.ID, d.ID}
	if !equalSlices(final, want) {
		t.Fatalf("final = %v, want %v", final, want)
	}
	col := f.column(t, f.newStage.ID)
	if !equalSlices(ids(col), want) || !equalSlices(positions(col), []int{1, 2, 3, 4}) {
		t.Fatalf("column = %v positions %v", ids(col), positions(col))
	}
}

func TestReorderExactlyListedPrefix(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))
	c := f.create(t, f.candidate("c"))
	d := f.create(t, f.candidate("d"))

	final, err := f.svc.ReorderColumn(context.Background(), admin, f.project, f.newStage.ID, []int64{a.ID, b.ID, c.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !equalSlices(final, []int64{a.ID, b.ID, c.ID, d.ID}) {
		t.Fatalf("final = %v", final)
	}
	if !equalSlices(positions(f.column(t, f.newStage.ID)), []int{1, 2, 3, 4}) {
		t.Fatal("positions not dense")
	}
}

func TestReorderDeduplicates(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))

	final, err := f.svc.ReorderColumn(context.Background(), admin, f.project, f.newStage.ID, []int64{b.ID, a.ID, b.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !equalSlices(final, []int64{b.ID, a.ID}) {
		t.Fatalf("final = %v", final)
	}
}

func TestReorderRejectsForeignIDs(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))
	moved := f.create(t, f.candidate("m"))
	if _, err := f.svc.MoveApplication(context.Background(), admin, moved.ID, f.screening.ID); err != nil {
		t.Fatal(err)
	}
	before := f.column(t, f.newStage.ID)

	_, err := f.svc.ReorderColumn(context.Background(), admin, f.project, f.newStage.ID, []int64{b.ID, moved.ID, a.ID})
	assertReason(t, err, KindInvalidInput, ReasonInvalidReorderSet)

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatal("expected *Error")
	}
	invalid, _ := pe.Details["invalid_ids"].([]int64)
	if !equalSlices(invalid, []int64{moved.ID}) {
		t.Fatalf("invalid_ids = %v, want [%d]", pe.Details["invalid_ids"], moved.ID)
	}
	after := f.column(t, f.newStage.ID)
	if !equalSlices(ids(before), ids(after)) || !equalSlices(positions(before), positions(after)) {
		t.Fatal("failed reorder changed the column")
	}
}

func TestReorderRejectsForeignStage(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddProject("Other", admin.UserID)
	foreign := f.store.AddStage(other, "new", "New", 1, false)
	_, err := f.svc.ReorderColumn(context.Background(), admin, f.project, foreign.ID, nil)
	assertReason(t, err, KindInvalidInput, ReasonStageNotFound)
}

func TestReorderWritesNoTransition(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))
	if _, err := f.svc.ReorderColumn(context.Background(), admin, f.project, f.newStage.ID, []int64{b.ID, a.ID}); err != nil {
		t.Fatal(err)
	}
	if n := len(f.history(t, a.ID)); n != 1 {
		t.Fatalf("reorder wrote transitions: %d events", n)
	}
}

func TestMoveToSameStageIsNoop(t *testing.T) {
	f := newFixture(t)
	card := f.create(t, f.candidate("a"))

	same, err := f.svc.MoveApplication(context.Background(), admin, card.ID, f.newStage.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !same.UpdatedAt.Equal(card.UpdatedAt) || same.Position != card.Position {
		t.Fatalf("no-op move changed the card: before %+v after %+v", card.Application, same.Application)
	}
	if n := len(f.history(t, card.ID)); n != 1 {
		t.Fatalf("no-op move wrote an event: %d events", n)
	}
}

func TestMoveWritesOneEvent(t *testing.T) {
	f := newFixture(t)
	card := f.create(t, f.candidate("a"))

	moved, err := f.svc.MoveApplication(context.Background(), recruiter, card.ID, f.screening.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.CurrentStageID != f.screening.ID || moved.Position != 1 {
		t.Fatalf("moved card: %+v", moved.Application)
	}
	if !moved.UpdatedAt.After(card.UpdatedAt) {
		t.Fatal("updated_at not refreshed")
	}

	events := f.history(t, card.ID)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	latest := events[0]
	if latest.FromStageID == nil || *latest.FromStageID != f.newStage.ID || latest.ToStageID != f.screening.ID {
		t.Fatalf("unexpected move event %+v", latest)
	}
	if latest.ChangedBy == nil || *latest.ChangedBy != recruiter.UserID {
		t.Fatalf("move actor not recorded: %+v", latest)
	}
}

func TestMoveRejectsForeignStage(t *testing.T) {
	f := newFixture(t)
	card := f.create(t, f.candidate("a"))
	other := f.store.AddProject("Other", admin.UserID)
	foreign := f.store.AddStage(other, "screening", "Screening", 2, false)

	_, err := f.svc.MoveApplication(context.Background(), admin, card.ID, foreign.ID)
	assertReason(t, err, KindInvalidInput, ReasonStageNotFound)

	got, err := f.svc.GetApplication(context.Background(), admin, card.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentStageID != f.newStage.ID {
		t.Fatal("rejected move changed the stage")
	}
}

func TestArchiveExcludesFromBoardAndPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))

	if err := f.svc.ArchiveApplication(ctx, admin, b.ID); err != nil {
		t.Fatal(err)
	}

	board, err := f.svc.Board(ctx, admin, f.project)
	if err != nil {
		t.Fatal(err)
	}
	for _, col := range board.Columns {
		for _, c := range col.Cards {
			if c.ID == b.ID {
				t.Fatal("archived card on the board")
			}
		}
	}

	// b held position 2; the next card must reuse max(live)+1 = 2
	c := f.create(t, f.candidate("c"))
	if c.Position != a.Position+1 {
		t.Fatalf("position after archive = %d, want %d", c.Position, a.Position+1)
	}

	// row still exists and is reachable when asked for explicitly
	archived, err := f.svc.GetApplication(ctx, admin, b.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !archived.IsArchived || archived.Position != b.Position || archived.CurrentStageID != b.CurrentStageID {
		t.Fatalf("archive altered the row: %+v", archived.Application)
	}
	if !archived.UpdatedAt.Equal(b.UpdatedAt) {
		t.Fatal("archive touched updated_at")
	}
	if n := len(f.history(t, b.ID)); n != 1 {
		t.Fatalf("archive wrote an event: %d events", n)
	}
}

func TestArchivedApplicationIsGoneForWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.candidate("a"))
	if err := f.svc.ArchiveApplication(ctx, admin, a.ID); err != nil {
		t.Fatal(err)
	}
	assertReason(t, f.svc.ArchiveApplication(ctx, admin, a.ID), KindNotFound, ReasonApplicationNotFound)
	_, err := f.svc.MoveApplication(ctx, admin, a.ID, f.screening.ID)
	assertReason(t, err, KindNotFound, ReasonApplicationNotFound)
	_, err = f.svc.GetApplication(ctx, admin, a.ID, false)
	assertReason(t, err, KindNotFound, ReasonApplicationNotFound)
}

func TestDuplicateRejectionAndReapplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cand := f.candidate("a")
	first := f.create(t, cand)

	_, err := f.svc.CreateApplication(ctx, admin, CreateInput{ProjectID: f.project, CandidateID: cand})
	assertReason(t, err, KindConflict, ReasonDuplicateApplication)

	if err := f.svc.ArchiveApplication(ctx, admin, first.ID); err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.CreateApplication(ctx, admin, CreateInput{ProjectID: f.project, CandidateID: cand})
	if err != nil {
		t.Fatalf("re-application after archive: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("re-application reused the archived row")
	}
}

func TestPipelineScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c1 := f.create(t, f.candidate("c1"))
	c2 := f.create(t, f.candidate("c2"))
	if c1.Position != 1 || c2.Position != 2 || c2.CurrentStageID != f.newStage.ID {
		t.Fatalf("setup: c1=%+v c2=%+v", c1.Application, c2.Application)
	}

	moved, err := f.svc.MoveApplication(ctx, admin, c2.ID, f.screening.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.CurrentStageID != f.screening.ID || moved.Position != 1 {
		t.Fatalf("moved: %+v", moved.Application)
	}

	newCol := f.column(t, f.newStage.ID)
	if !equalSlices(ids(newCol), []int64{c1.ID}) || newCol[0].Position != 1 {
		t.Fatalf("new column: %v %v", ids(newCol), positions(newCol))
	}

	events := f.history(t, c2.ID)
	if len(events) != 2 {
		t.Fatalf("history length %d", len(events))
	}
	// newest first
	if events[1].FromStageID != nil || events[1].ToStageID != f.newStage.ID {
		t.Fatalf("creation event %+v", events[1])
	}
	if *events[0].FromStageID != f.newStage.ID || events[0].ToStageID != f.screening.ID {
		t.Fatalf("move event %+v", events[0])
	}
}

func TestMutationsEnqueueEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.candidate("a"))
	if _, err := f.svc.MoveApplication(ctx, admin, a.ID, f.newStage.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.MoveApplication(ctx, admin, a.ID, f.screening.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ReorderColumn(ctx, admin, f.project, f.screening.ID, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.ArchiveApplication(ctx, admin, a.ID); err != nil {
		t.Fatal(err)
	}

	var keys []string
	for _, m := range f.store.Messages() {
		keys = append(keys, m.RoutingKey)
	}
	want := []string{
		"pipeline.application.created",
		"pipeline.application.moved",
		"pipeline.column.reordered",
		"pipeline.application.archived",
	}
	if !equalSlices(keys, want) {
		t.Fatalf("routing keys = %v, want %v", keys, want)
	}
}

func TestTimedOutOperationLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.CreateApplication(ctx, admin, CreateInput{ProjectID: f.project, CandidateID: f.candidate("a")})
	if err == nil {
		t.Fatal("expected cancelled context to fail")
	}
	if KindOf(err) != KindInternal {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if len(f.column(t, f.newStage.ID)) != 0 || len(f.store.Messages()) != 0 {
		t.Fatal("cancelled create left state behind")
	}
}

func TestMergeOrder(t *testing.T) {
	column := []Application{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}
	cases := []struct {
		name      string
		requested []int64
		final     []int64
		invalid   []int64
	}{
		{"empty keeps order", nil, []int64{1, 2, 3, 4}, nil},
		{"full", []int64{4, 3, 2, 1}, []int64{4, 3, 2, 1}, nil},
		{"partial", []int64{3}, []int64{3, 1, 2, 4}, nil},
		{"duplicates", []int64{2, 2, 1, 2}, []int64{2, 1, 3, 4}, nil},
		{"invalid deduped", []int64{9, 1, 9, 8}, nil, []int64{9, 8}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			final, invalid := mergeOrder(column, tc.requested)
			if !equalSlices(final, tc.final) || !equalSlices(invalid, tc.invalid) {
				t.Fatalf("got final=%v invalid=%v", final, invalid)
			}
		})
	}
}

func TestHistoryStampsFollowStoreClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	f.store.SetClock(func() time.Time { return t0 })

	card := f.create(t, f.candidate("a"))
	if _, err := f.svc.MoveApplication(ctx, admin, card.ID, f.screening.ID); err != nil {
		t.Fatal(err)
	}
	if !card.CreatedAt.Equal(t0) {
		t.Fatalf("created_at = %v, want %v", card.CreatedAt, t0)
	}

	// a stopped clock still yields strictly increasing stamps, so the
	// newest-first history order is the write order
	events := f.history(t, card.ID)
	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].FromStageID == nil || *events[0].FromStageID != f.newStage.ID || events[1].FromStageID != nil {
		t.Fatalf("history not newest first: %+v", events)
	}
	if !events[0].ChangedAt.After(events[1].ChangedAt) {
		t.Fatalf("stamps not increasing: %v then %v", events[1].ChangedAt, events[0].ChangedAt)
	}
}
