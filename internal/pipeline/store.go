package pipeline

import (
	"context"
	"time"

	"hirepipe/pkg/rbac"
)

// TxFunc is a unit of work executed inside one storage transaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Store opens transactions over the pipeline tables.
//
// WithTx runs fn in a read-write transaction and commits only if fn returns
// nil. Reads made after LockColumns or LockApplication see every write
// committed by the previous lock holder. Deadlocks are retried by the store
// and surface as ErrRetryExhausted once the budget is spent. WithSnapshot runs fn
// in a read-only transaction where every read sees the same snapshot.
type Store interface {
	WithTx(ctx context.Context, operation string, fn TxFunc) error
	WithSnapshot(ctx context.Context, fn TxFunc) error
}

// Reader is the read side of a transaction.
type Reader interface {
	GetProject(ctx context.Context, id int64) (*Project, error)
	GetCandidate(ctx context.Context, id int64) (*CandidateSummary, error)
	GetMembership(ctx context.Context, projectID, userID int64) (rbac.MemberRole, bool, error)
	// CandidateVisibleTo reports whether the candidate has no application at
	// all, or has one in a project where userID is a member.
	CandidateVisibleTo(ctx context.Context, candidateID, userID int64) (bool, error)

	// ListStages returns the project's stages in any order.
	ListStages(ctx context.Context, projectID int64) ([]Stage, error)

	GetApplication(ctx context.Context, id int64) (*Application, error)
	// FindLiveApplication returns nil, nil when the pair has no live application.
	FindLiveApplication(ctx context.Context, projectID, candidateID int64) (*Application, error)
	// MaxPosition returns 0 for an empty column.
	MaxPosition(ctx context.Context, projectID, stageID int64) (int, error)
	// ListColumn returns the column's live applications by (position, id).
	ListColumn(ctx context.Context, projectID, stageID int64) ([]Application, error)
	// ListLiveCards returns every live card of the project in any order.
	ListLiveCards(ctx context.Context, projectID int64) ([]Card, error)
	// ListApplications returns cards by (updated_at desc, id desc).
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Card, error)
	// ListEvents returns the application's events by (changed_at desc, id desc).
	ListEvents(ctx context.Context, applicationID int64) ([]StageChangeEvent, error)
}

// Tx is a read-write transaction. Only the ledger, recorder and catalog in
// this package call the write methods.
type Tx interface {
	Reader

	// LockColumns takes the exclusive column locks for (projectID, stageID)
	// pairs until the transaction ends. Locks are taken in ascending stage id
	// order so two transactions touching the same columns cannot deadlock.
	LockColumns(ctx context.Context, projectID int64, stageIDs ...int64) error
	// LockApplication re-reads an application and holds it until the
	// transaction ends. Call it after LockColumns.
	LockApplication(ctx context.Context, id int64) (*Application, error)

	InsertStage(ctx context.Context, s *Stage) error
	EnsureMembership(ctx context.Context, projectID, userID int64, role rbac.MemberRole) error

	// InsertApplication fills ID and timestamps. A second live application for
	// the same (project, candidate) fails with ErrDuplicate.
	InsertApplication(ctx context.Context, app *Application) error
	// UpdateApplicationStage moves a live application and returns the new updated_at.
	UpdateApplicationStage(ctx context.Context, id, stageID int64, position int) (time.Time, error)
	// SetPositions assigns positions 1..N in the given order to live
	// applications of the column and returns how many rows it changed.
	SetPositions(ctx context.Context, projectID, stageID int64, orderedIDs []int64) (int, error)
	ArchiveApplication(ctx context.Context, id int64) error

	InsertEvent(ctx context.Context, ev *StageChangeEvent) error

	// Enqueue writes a message to the outbox in this transaction.
	Enqueue(ctx context.Context, msg Message) error
}

// Message is an event queued for publication after commit.
type Message struct {
	AggregateType string
	AggregateID   *int64
	RoutingKey    string
	Payload       any
}
