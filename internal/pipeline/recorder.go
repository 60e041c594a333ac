package pipeline

import "context"

// recordTransition appends one stage change event. Events are never updated
// or deleted once written.
func recordTransition(ctx context.Context, tx Tx, applicationID int64, from *int64, to int64, actor *int64) (*StageChangeEvent, error) {
	ev := &StageChangeEvent{
		ApplicationID: applicationID,
		FromStageID:   from,
		ToStageID:     to,
		ChangedBy:     actor,
	}
	if err := tx.InsertEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// History returns the application's transitions, newest first.
func History(ctx context.Context, r Reader, applicationID int64) ([]StageChangeEvent, error) {
	return r.ListEvents(ctx, applicationID)
}
