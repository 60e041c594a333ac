package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hirepipe/pkg/logger"
	"hirepipe/pkg/metrics"
	"hirepipe/pkg/otel"
	"hirepipe/pkg/rbac"
)

// Service is the entry point of the pipeline core. Every operation checks
// the policy and runs in a single transaction bounded by the configured
// timeout.
type Service struct {
	store     Store
	policy    Policy
	logger    *zap.Logger
	txTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces the default RolePolicy.
func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithTxTimeout bounds every operation; zero keeps the default of 5s.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		policy:    RolePolicy{},
		logger:    logger,
		txTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run wraps one operation with the timeout, a span, the operation counter
// and failure logging.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	ctx, span := otel.StartSpan(ctx, "pipeline."+op)
	defer func() { otel.EndSpan(span, err) }()

	err = errInternal(op, fn(ctx))

	kind := KindOf(err)
	switch {
	case err == nil:
		metrics.IncrementPipelineOperation(op, "ok")
	case kind == KindInternal:
		metrics.IncrementPipelineOperation(op, kind.String())
		logger.WithTrace(ctx, s.logger).Error("Pipeline operation failed",
			zap.String("operation", op),
			zap.Error(err),
		)
	default:
		metrics.IncrementPipelineOperation(op, kind.String())
		logger.WithTrace(ctx, s.logger).Info("Pipeline operation rejected",
			zap.String("operation", op),
			zap.String("kind", kind.String()),
			zap.String("reason", ReasonOf(err)),
		)
	}
	return err
}

// readableProject loads a project the actor can read. Missing and
// unreadable projects fail the same way, with the given kind.
func (s *Service) readableProject(ctx context.Context, r Reader, actor Actor, projectID int64, missing Kind) (*Project, error) {
	p, err := r.GetProject(ctx, projectID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, errProjectNotFound(missing, projectID)
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.policy.CanRead(ctx, r, actor, projectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errProjectNotFound(missing, projectID)
	}
	return p, nil
}

func (s *Service) requireWrite(ctx context.Context, r Reader, actor Actor, projectID int64) error {
	ok, err := s.policy.CanWrite(ctx, r, actor, projectID)
	if err != nil {
		return err
	}
	if !ok {
		return errForbidden()
	}
	return nil
}

// readableApplication loads an application the actor can read. Archived
// applications are reported missing unless includeArchived is set.
func (s *Service) readableApplication(ctx context.Context, r Reader, actor Actor, id int64, includeArchived bool) (*Application, error) {
	app, err := r.GetApplication(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, errApplicationNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	if app.IsArchived && !includeArchived {
		return nil, errApplicationNotFound(id)
	}
	ok, err := s.policy.CanRead(ctx, r, actor, app.ProjectID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errApplicationNotFound(id)
	}
	return app, nil
}

func cardOf(ctx context.Context, r Reader, app *Application) (*Card, error) {
	cand, err := r.GetCandidate(ctx, app.CandidateID)
	if err != nil {
		return nil, err
	}
	return &Card{Application: *app, Candidate: *cand}, nil
}

// CreateApplication enters a candidate into a project's pipeline at the end
// of the requested (or default) stage's column.
func (s *Service) CreateApplication(ctx context.Context, actor Actor, in CreateInput) (*Card, error) {
	var card *Card
	err := s.run(ctx, "create", func(ctx context.Context) error {
		return s.store.WithTx(ctx, "create", func(ctx context.Context, tx Tx) error {
			if _, err := s.readableProject(ctx, tx, actor, in.ProjectID, KindInvalidInput); err != nil {
				return err
			}

			cand, err := tx.GetCandidate(ctx, in.CandidateID)
			if errors.Is(err, ErrRecordNotFound) {
				return errCandidateNotFound(in.CandidateID)
			}
			if err != nil {
				return err
			}
			visible, err := s.policy.CanSeeCandidate(ctx, tx, actor, in.CandidateID)
			if err != nil {
				return err
			}
			if !visible {
				return errCandidateNotFound(in.CandidateID)
			}

			stage, err := FindStage(ctx, tx, in.ProjectID, in.Stage)
			if err != nil {
				return err
			}
			if err := s.requireWrite(ctx, tx, actor, in.ProjectID); err != nil {
				return err
			}

			app, err := createApplication(ctx, tx, stage, in.CandidateID, actor.ID())
			if err != nil {
				return err
			}
			card = &Card{Application: *app, Candidate: *cand}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.IncrementStageTransition("created")
	logger.WithTrace(ctx, s.logger).Info("Application created",
		zap.Int64("application_id", card.ID),
		zap.Int64("project_id", card.ProjectID),
		zap.Int64("to_stage_id", card.CurrentStageID),
		zap.Int("position", card.Position),
		zap.Int64("actor_id", actor.UserID),
	)
	return card, nil
}

// MoveApplication moves an application to the end of another stage's column.
// Moving to the current stage returns the card unchanged.
func (s *Service) MoveApplication(ctx context.Context, actor Actor, applicationID, toStageID int64) (*Card, error) {
	var (
		card  *Card
		from  int64
		to    Stage
		moved bool
	)
	err := s.run(ctx, "move", func(ctx context.Context) error {
		return s.store.WithTx(ctx, "move", func(ctx context.Context, tx Tx) error {
			app, err := s.readableApplication(ctx, tx, actor, applicationID, false)
			if err != nil {
				return err
			}
			to, err = FindStage(ctx, tx, app.ProjectID, StageRef{ID: &toStageID})
			if err != nil {
				return err
			}
			if err := s.requireWrite(ctx, tx, actor, app.ProjectID); err != nil {
				return err
			}

			from = app.CurrentStageID
			moved, err = moveApplication(ctx, tx, app, to, actor.ID())
			if err != nil {
				return err
			}
			card, err = cardOf(ctx, tx, app)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithTrace(ctx, s.logger)
	if !moved {
		log.Debug("Application already in stage",
			zap.Int64("application_id", applicationID),
			zap.Int64("stage_id", toStageID),
		)
		return card, nil
	}
	metrics.IncrementStageTransition(to.SystemKey)
	log.Info("Application moved",
		zap.Int64("application_id", card.ID),
		zap.Int64("project_id", card.ProjectID),
		zap.Int64("from_stage_id", from),
		zap.Int64("to_stage_id", to.ID),
		zap.Int("position", card.Position),
		zap.Int64("actor_id", actor.UserID),
	)
	return card, nil
}

// ReorderColumn assigns positions 1..N to a column. It returns the final
// order, which is the deduplicated request followed by any cards the request
// left out.
func (s *Service) ReorderColumn(ctx context.Context, actor Actor, projectID, stageID int64, orderedIDs []int64) ([]int64, error) {
	var final []int64
	err := s.run(ctx, "reorder", func(ctx context.Context) error {
		return s.store.WithTx(ctx, "reorder", func(ctx context.Context, tx Tx) error {
			if _, err := s.readableProject(ctx, tx, actor, projectID, KindNotFound); err != nil {
				return err
			}
			stage, err := FindStage(ctx, tx, projectID, StageRef{ID: &stageID})
			if err != nil {
				return err
			}
			if err := s.requireWrite(ctx, tx, actor, projectID); err != nil {
				return err
			}
			final, err = reorderColumn(ctx, tx, stage, orderedIDs, actor.ID())
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Column reordered",
		zap.Int64("project_id", projectID),
		zap.Int64("stage_id", stageID),
		zap.Int("cards", len(final)),
		zap.Int64("actor_id", actor.UserID),
	)
	return final, nil
}

// ArchiveApplication soft-deletes an application.
func (s *Service) ArchiveApplication(ctx context.Context, actor Actor, applicationID int64) error {
	var projectID int64
	err := s.run(ctx, "archive", func(ctx context.Context) error {
		return s.store.WithTx(ctx, "archive", func(ctx context.Context, tx Tx) error {
			app, err := s.readableApplication(ctx, tx, actor, applicationID, false)
			if err != nil {
				return err
			}
			if err := s.requireWrite(ctx, tx, actor, app.ProjectID); err != nil {
				return err
			}
			projectID = app.ProjectID
			return archiveApplication(ctx, tx, app, actor.ID())
		})
	})
	if err != nil {
		return err
	}

	logger.WithTrace(ctx, s.logger).Info("Application archived",
		zap.Int64("application_id", applicationID),
		zap.Int64("project_id", projectID),
		zap.Int64("actor_id", actor.UserID),
	)
	return nil
}

// Board returns the kanban view of a project from one snapshot.
func (s *Service) Board(ctx context.Context, actor Actor, projectID int64) (*Board, error) {
	var board *Board
	err := s.run(ctx, "board", func(ctx context.Context) error {
		return s.store.WithSnapshot(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			board, err = s.buildBoard(ctx, tx, actor, projectID)
			return err
		})
	})
	return board, err
}

// Summary returns the live head count per stage.
func (s *Service) Summary(ctx context.Context, actor Actor, projectID int64) (*Summary, error) {
	var summary *Summary
	err := s.run(ctx, "summary", func(ctx context.Context) error {
		return s.store.WithSnapshot(ctx, func(ctx context.Context, tx Tx) error {
			board, err := s.buildBoard(ctx, tx, actor, projectID)
			if err != nil {
				return err
			}
			summary = Summarize(board)
			return nil
		})
	})
	return summary, err
}

func (s *Service) buildBoard(ctx context.Context, r Reader, actor Actor, projectID int64) (*Board, error) {
	if _, err := s.readableProject(ctx, r, actor, projectID, KindNotFound); err != nil {
		return nil, err
	}
	stages, err := ListStages(ctx, r, projectID)
	if err != nil {
		return nil, err
	}
	cards, err := r.ListLiveCards(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return BuildBoard(projectID, stages, cards), nil
}

// Stages lists a project's stages in column order.
func (s *Service) Stages(ctx context.Context, actor Actor, projectID int64) ([]Stage, error) {
	var stages []Stage
	err := s.run(ctx, "stages", func(ctx context.Context) error {
		return s.store.WithSnapshot(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := s.readableProject(ctx, tx, actor, projectID, KindNotFound); err != nil {
				return err
			}
			var err error
			stages, err = ListStages(ctx, tx, projectID)
			return err
		})
	})
	return stages, err
}

// GetApplication returns one card. Archived applications are only returned
// when includeArchived is set.
func (s *Service) GetApplication(ctx context.Context, actor Actor, applicationID int64, includeArchived bool) (*Card, error) {
	var card *Card
	err := s.run(ctx, "get", func(ctx context.Context) error {
		return s.store.WithSnapshot(ctx, func(ctx context.Context, tx Tx) error {
			app, err := s.readableApplication(ctx, tx, actor, applicationID, includeArchived)
			if err != nil {
				return err
			}
			card, err = cardOf(ctx, tx, app)
			return err
		})
	})
	return card, err
}

// ListApplications returns the applications the actor can see, most
// recently updated first.
func (s *Service) ListApplications(ctx context.Context, actor Actor, filter ApplicationFilter) ([]Card, error) {
	filter.MemberOf = nil
	if !rbac.IsGlobal(actor.Role, actor.IsSuperuser) {
		uid := actor.UserID
		filter.MemberOf = &uid
	}

	var cards []Card
	err := s.run(ctx, "list", func(ctx context.Context) error {
		return s.store.WithSnapshot(ctx, func(ctx context.Context, tx Tx) error {
			var err error
			cards, err = tx.ListApplications(ctx, filter)
			return err
		})
	})
	return cards, err
}

// History returns an application's stage transitions, newest first.
// Archived applications keep their history.
func (s *Service) History(ctx context.Context, actor Actor, applicationID int64) ([]StageChangeEvent, error) {
	var events []StageChangeEvent
	err := s.run(ctx, "history", func(ctx context.Context) error {
		return s.store.WithSnapshot(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := s.readableApplication(ctx, tx, actor, applicationID, true); err != nil {
				return err
			}
			var err error
			events, err = History(ctx, tx, applicationID)
			return err
		})
	})
	return events, err
}

// ProvisionStages creates the default stage set of a project (keeping
// stages that already exist) and makes ownerID an OWNER member when set.
func (s *Service) ProvisionStages(ctx context.Context, projectID, ownerID int64) ([]Stage, error) {
	var stages []Stage
	err := s.run(ctx, "provision", func(ctx context.Context) error {
		return s.store.WithTx(ctx, "provision", func(ctx context.Context, tx Tx) error {
			if _, err := tx.GetProject(ctx, projectID); err != nil {
				if errors.Is(err, ErrRecordNotFound) {
					return errProjectNotFound(KindNotFound, projectID)
				}
				return err
			}
			var err error
			stages, err = provisionStages(ctx, tx, projectID)
			if err != nil {
				return err
			}
			if ownerID != 0 {
				return tx.EnsureMembership(ctx, projectID, ownerID, rbac.MemberOwner)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Stages provisioned",
		zap.Int64("project_id", projectID),
		zap.Int("stages", len(stages)),
	)
	return stages, nil
}
