package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestBuildBoardOrdering(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stages := []Stage{{ID: 1, Order: 1}, {ID: 2, Order: 2}, {ID: 3, Order: 3}}
	card := func(id, stage int64, pos int, updated time.Duration, archived bool) Card {
		return Card{Application: Application{
			ID: id, ProjectID: 7, CurrentStageID: stage, Position: pos,
			UpdatedAt: t0.Add(updated), IsArchived: archived,
		}}
	}
	cards := []Card{
		card(10, 1, 2, 0, false),
		card(11, 1, 1, 0, false),
		card(12, 1, 2, time.Minute, false), // same position as 10, newer
		card(13, 1, 2, time.Minute, false), // ties with 12 on both, higher id
		card(14, 2, 1, 0, true),
		card(15, 2, 3, 0, false),
		card(16, 9, 1, 0, false), // unknown stage
	}

	board := BuildBoard(7, stages, cards)
	if len(board.Columns) != 3 {
		t.Fatalf("columns = %d", len(board.Columns))
	}
	var got []int64
	for _, c := range board.Columns[0].Cards {
		got = append(got, c.ID)
	}
	if !equalSlices(got, []int64{11, 12, 13, 10}) {
		t.Fatalf("column 1 order = %v", got)
	}
	if len(board.Columns[1].Cards) != 1 || board.Columns[1].Cards[0].ID != 15 {
		t.Fatalf("column 2 = %+v", board.Columns[1].Cards)
	}
	if board.Columns[2].Cards == nil || len(board.Columns[2].Cards) != 0 {
		t.Fatal("empty column must be an empty slice")
	}

	sum := Summarize(board)
	if sum.Total != 5 || sum.Stages[0].Count != 4 || sum.Stages[1].Count != 1 || sum.Stages[2].Count != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestServiceBoardAndSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, f.candidate("a"))
	b := f.create(t, f.candidate("b"))
	if _, err := f.svc.MoveApplication(ctx, admin, b.ID, f.screening.ID); err != nil {
		t.Fatal(err)
	}

	board, err := f.svc.Board(ctx, recruiter, f.project)
	if err != nil {
		t.Fatal(err)
	}
	if board.Columns[0].Stage.ID != f.newStage.ID || board.Columns[1].Stage.ID != f.screening.ID {
		t.Fatal("columns not in stage order")
	}
	if board.Columns[0].Cards[0].ID != a.ID || board.Columns[1].Cards[0].ID != b.ID {
		t.Fatal("cards in wrong columns")
	}
	if board.Columns[0].Cards[0].Candidate.Email != "a@example.com" {
		t.Fatal("candidate summary missing on board")
	}

	sum, err := f.svc.Summary(ctx, viewer, f.project)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 2 || sum.Stages[0].Count != 1 || sum.Stages[1].Count != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	_, err = f.svc.Board(ctx, admin, 12345)
	assertReason(t, err, KindNotFound, ReasonProjectNotFound)
}

func TestStagesRequireRead(t *testing.T) {
	f := newFixture(t)
	stages, err := f.svc.Stages(context.Background(), viewer, f.project)
	if err != nil || len(stages) != 2 {
		t.Fatalf("stages = %+v, %v", stages, err)
	}
	_, err = f.svc.Stages(context.Background(), outsider, f.project)
	assertReason(t, err, KindNotFound, ReasonProjectNotFound)
}
