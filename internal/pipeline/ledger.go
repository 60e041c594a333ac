package pipeline

import (
	"context"
	"errors"
	"time"

	"hirepipe/contracts/mq"
	"hirepipe/pkg/trace"
)

// The ledger functions run inside a caller-owned Tx after policy checks.
// Each takes the column lock of every column it reads a max position from or
// rewrites before reading it, so the read-max-then-write window is exclusive
// per column. Move and archive then re-read the application under its row
// lock, because the copy the caller checked was read before any lock.

// createApplication appends a new application to the end of stage's column
// and records the initial transition.
func createApplication(ctx context.Context, tx Tx, stage Stage, candidateID int64, actor *int64) (*Application, error) {
	if err := tx.LockColumns(ctx, stage.ProjectID, stage.ID); err != nil {
		return nil, err
	}

	live, err := tx.FindLiveApplication(ctx, stage.ProjectID, candidateID)
	if err != nil {
		return nil, err
	}
	if live != nil {
		return nil, errDuplicate(stage.ProjectID, candidateID)
	}

	pos, err := nextPosition(ctx, tx, stage.ProjectID, stage.ID)
	if err != nil {
		return nil, err
	}

	app := &Application{
		ProjectID:      stage.ProjectID,
		CandidateID:    candidateID,
		CurrentStageID: stage.ID,
		Position:       pos,
	}
	if err := tx.InsertApplication(ctx, app); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, errDuplicate(stage.ProjectID, candidateID)
		}
		return nil, err
	}

	if _, err := recordTransition(ctx, tx, app.ID, nil, stage.ID, actor); err != nil {
		return nil, err
	}

	return app, tx.Enqueue(ctx, Message{
		AggregateType: mq.AggregateApplication,
		AggregateID:   &app.ID,
		RoutingKey:    mq.RoutingApplicationCreated,
		Payload: mq.ApplicationCreatedPayload{
			ApplicationID: app.ID,
			ProjectID:     app.ProjectID,
			CandidateID:   app.CandidateID,
			StageID:       stage.ID,
			Position:      app.Position,
			ActorID:       actor,
			OccurredAt:    app.CreatedAt,
			TraceID:       trace.FromContext(ctx),
		},
	})
}

// moveApplication appends app to the end of the destination column. Moving
// to the current stage changes nothing and returns moved=false.
func moveApplication(ctx context.Context, tx Tx, app *Application, to Stage, actor *int64) (moved bool, err error) {
	if app.CurrentStageID == to.ID {
		return false, nil
	}
	from := app.CurrentStageID

	if err := tx.LockColumns(ctx, app.ProjectID, from, to.ID); err != nil {
		return false, err
	}
	if err := relock(ctx, tx, app); err != nil {
		return false, err
	}

	pos, err := nextPosition(ctx, tx, app.ProjectID, to.ID)
	if err != nil {
		return false, err
	}

	updatedAt, err := tx.UpdateApplicationStage(ctx, app.ID, to.ID, pos)
	if err != nil {
		return false, err
	}
	app.CurrentStageID = to.ID
	app.Position = pos
	app.UpdatedAt = updatedAt

	if _, err := recordTransition(ctx, tx, app.ID, &from, to.ID, actor); err != nil {
		return false, err
	}

	return true, tx.Enqueue(ctx, Message{
		AggregateType: mq.AggregateApplication,
		AggregateID:   &app.ID,
		RoutingKey:    mq.RoutingApplicationMoved,
		Payload: mq.ApplicationMovedPayload{
			ApplicationID: app.ID,
			ProjectID:     app.ProjectID,
			CandidateID:   app.CandidateID,
			FromStageID:   from,
			ToStageID:     to.ID,
			Position:      pos,
			ActorID:       actor,
			OccurredAt:    updatedAt,
			TraceID:       trace.FromContext(ctx),
		},
	})
}

// reorderColumn re-indexes the live cards of a column as 1..N. Ids the
// caller did not mention keep their relative order after the given ones.
func reorderColumn(ctx context.Context, tx Tx, stage Stage, orderedIDs []int64, actor *int64) ([]int64, error) {
	if err := tx.LockColumns(ctx, stage.ProjectID, stage.ID); err != nil {
		return nil, err
	}

	column, err := tx.ListColumn(ctx, stage.ProjectID, stage.ID)
	if err != nil {
		return nil, err
	}

	final, invalid := mergeOrder(column, orderedIDs)
	if len(invalid) > 0 {
		return nil, errInvalidReorderSet(invalid)
	}

	n, err := tx.SetPositions(ctx, stage.ProjectID, stage.ID, final)
	if err != nil {
		return nil, err
	}
	if n != len(final) {
		// a listed card left the column before the update
		return nil, errConcurrent(nil)
	}

	return final, tx.Enqueue(ctx, Message{
		AggregateType: mq.AggregateColumn,
		AggregateID:   &stage.ID,
		RoutingKey:    mq.RoutingColumnReordered,
		Payload: mq.ColumnReorderedPayload{
			ProjectID:      stage.ProjectID,
			StageID:        stage.ID,
			ApplicationIDs: final,
			ActorID:        actor,
			OccurredAt:     time.Now().UTC(),
			TraceID:        trace.FromContext(ctx),
		},
	})
}

// mergeOrder dedupes requested (first occurrence wins), rejects ids that are
// not in column and appends the unmentioned cards in their current order.
func mergeOrder(column []Application, requested []int64) (final, invalid []int64) {
	inColumn := make(map[int64]bool, len(column))
	for _, a := range column {
		inColumn[a.ID] = true
	}

	seen := make(map[int64]bool, len(requested))
	badSeen := make(map[int64]bool)
	final = make([]int64, 0, len(column))
	for _, id := range requested {
		if !inColumn[id] {
			if !badSeen[id] {
				badSeen[id] = true
				invalid = append(invalid, id)
			}
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		final = append(final, id)
	}
	if len(invalid) > 0 {
		return nil, invalid
	}

	for _, a := range column {
		if !seen[a.ID] {
			final = append(final, a.ID)
		}
	}
	return final, nil
}

// archiveApplication soft-deletes app. Stage, position and updated_at stay as
// they are and no transition is recorded.
func archiveApplication(ctx context.Context, tx Tx, app *Application, actor *int64) error {
	if err := tx.LockColumns(ctx, app.ProjectID, app.CurrentStageID); err != nil {
		return err
	}
	if err := relock(ctx, tx, app); err != nil {
		return err
	}
	if err := tx.ArchiveApplication(ctx, app.ID); err != nil {
		return err
	}
	app.IsArchived = true

	return tx.Enqueue(ctx, Message{
		AggregateType: mq.AggregateApplication,
		AggregateID:   &app.ID,
		RoutingKey:    mq.RoutingApplicationArchived,
		Payload: mq.ApplicationArchivedPayload{
			ApplicationID: app.ID,
			ProjectID:     app.ProjectID,
			CandidateID:   app.CandidateID,
			StageID:       app.CurrentStageID,
			ActorID:       actor,
			OccurredAt:    time.Now().UTC(),
			TraceID:       trace.FromContext(ctx),
		},
	})
}

// relock refreshes app under its row lock and fails with a conflict when
// another transaction moved or archived it since the caller read it.
func relock(ctx context.Context, tx Tx, app *Application) error {
	cur, err := tx.LockApplication(ctx, app.ID)
	if err != nil {
		return err
	}
	if cur.CurrentStageID != app.CurrentStageID || cur.IsArchived != app.IsArchived {
		return errConcurrent(nil)
	}
	*app = *cur
	return nil
}

// nextPosition is max(position)+1 over the live cards of the column, 1 when empty.
func nextPosition(ctx context.Context, tx Tx, projectID, stageID int64) (int, error) {
	top, err := tx.MaxPosition(ctx, projectID, stageID)
	if err != nil {
		return 0, err
	}
	return top + 1, nil
}
