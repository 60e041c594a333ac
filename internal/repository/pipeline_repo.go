package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"hirepipe/internal/pipeline"
	"hirepipe/pkg/db"
	"hirepipe/pkg/outbox"
	"hirepipe/pkg/rbac"
)

// PipelineRepository implements pipeline.Store on PostgreSQL.
type PipelineRepository struct {
	runner *db.TxRunner
}

func NewPipelineRepository(pool *pgxpool.Pool, logger *zap.Logger, maxRetries int) *PipelineRepository {
	return &PipelineRepository{runner: db.NewTxRunner(pool, logger, maxRetries)}
}

// WithTx runs fn in a READ COMMITTED transaction, retrying deadlocks.
// Column exclusion comes from LockColumns and LockApplication, and every
// statement after a lock sees the rows committed by the previous holder.
func (r *PipelineRepository) WithTx(ctx context.Context, operation string, fn pipeline.TxFunc) error {
	err := r.runner.ReadCommitted(ctx, operation, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
	if errors.Is(err, db.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %v", pipeline.ErrRetryExhausted, err)
	}
	return err
}

// WithSnapshot runs fn in a REPEATABLE READ READ ONLY transaction.
func (r *PipelineRepository) WithSnapshot(ctx context.Context, fn pipeline.TxFunc) error {
	return r.runner.ReadSnapshot(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return pipeline.ErrRecordNotFound
	}
	return err
}

func (t *pgTx) GetProject(ctx context.Context, id int64) (*pipeline.Project, error) {
	var p pipeline.Project
	err := t.tx.QueryRow(ctx, `SELECT id, title, owner_id FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.OwnerID)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

const candidateColumns = `
	c.id, btrim(c.first_name || ' ' || c.last_name), c.email, c.phone, c.city,
	c.experience_years, c.rating,
	COALESCE((SELECT array_agg(s.name ORDER BY s.name)
	          FROM candidate_skills cs JOIN skills s ON s.id = cs.skill_id
	          WHERE cs.candidate_id = c.id), '{}')`

func (t *pgTx) GetCandidate(ctx context.Context, id int64) (*pipeline.CandidateSummary, error) {
	var c pipeline.CandidateSummary
	err := t.tx.QueryRow(ctx, `SELECT `+candidateColumns+` FROM candidates c WHERE c.id = $1`, id).
		Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.City, &c.ExperienceYears, &c.Rating, &c.Skills)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (t *pgTx) GetMembership(ctx context.Context, projectID, userID int64) (rbac.MemberRole, bool, error) {
	var role string
	err := t.tx.QueryRow(ctx,
		`SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	member, ok := memberRole(role)
	return member, ok, nil
}

// memberRole treats a stored role the code does not know as no membership.
func memberRole(stored string) (rbac.MemberRole, bool) {
	role := rbac.MemberRole(stored)
	if !role.Valid() {
		return "", false
	}
	return role, true
}

func (t *pgTx) CandidateVisibleTo(ctx context.Context, candidateID, userID int64) (bool, error) {
	var visible bool
	err := t.tx.QueryRow(ctx, `
		SELECT NOT EXISTS (SELECT 1 FROM applications WHERE candidate_id = $1)
		    OR EXISTS (
		        SELECT 1 FROM applications a
		        JOIN project_members m ON m.project_id = a.project_id AND m.user_id = $2
		        WHERE a.candidate_id = $1)
	`, candidateID, userID).Scan(&visible)
	return visible, err
}

func (t *pgTx) ListStages(ctx context.Context, projectID int64) ([]pipeline.Stage, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, project_id, name, system_key, "order", is_final
		FROM stages WHERE project_id = $1
		ORDER BY "order", id
	`, projectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.Stage, error) {
		var s pipeline.Stage
		err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.SystemKey, &s.Order, &s.IsFinal)
		return s, err
	})
}

const applicationColumns = `a.id, a.project_id, a.candidate_id, a.current_stage_id,
	a.position_in_stage, a.is_archived, a.created_at, a.updated_at`

func scanApplication(row pgx.Row) (pipeline.Application, error) {
	var a pipeline.Application
	err := row.Scan(&a.ID, &a.ProjectID, &a.CandidateID, &a.CurrentStageID,
		&a.Position, &a.IsArchived, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (t *pgTx) GetApplication(ctx context.Context, id int64) (*pipeline.Application, error) {
	a, err := scanApplication(t.tx.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications a WHERE a.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// LockApplication re-reads the application and holds its row lock until the
// transaction ends.
func (t *pgTx) LockApplication(ctx context.Context, id int64) (*pipeline.Application, error) {
	a, err := scanApplication(t.tx.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications a WHERE a.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (t *pgTx) FindLiveApplication(ctx context.Context, projectID, candidateID int64) (*pipeline.Application, error) {
	a, err := scanApplication(t.tx.QueryRow(ctx, `
		SELECT `+applicationColumns+` FROM applications a
		WHERE a.project_id = $1 AND a.candidate_id = $2 AND NOT a.is_archived
	`, projectID, candidateID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) MaxPosition(ctx context.Context, projectID, stageID int64) (int, error) {
	var top int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position_in_stage), 0) FROM applications
		WHERE project_id = $1 AND current_stage_id = $2 AND NOT is_archived
	`, projectID, stageID).Scan(&top)
	return top, err
}

func (t *pgTx) ListColumn(ctx context.Context, projectID, stageID int64) ([]pipeline.Application, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+applicationColumns+` FROM applications a
		WHERE a.project_id = $1 AND a.current_stage_id = $2 AND NOT a.is_archived
		ORDER BY a.position_in_stage, a.id
	`, projectID, stageID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.Application, error) {
		return scanApplication(row)
	})
}

const cardQuery = `SELECT ` + applicationColumns + `,` + candidateColumns + `
	FROM applications a JOIN candidates c ON c.id = a.candidate_id`

func (t *pgTx) queryCards(ctx context.Context, query string, args ...any) ([]pipeline.Card, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.Card, error) {
		var c pipeline.Card
		err := row.Scan(
			&c.ID, &c.ProjectID, &c.CandidateID, &c.CurrentStageID,
			&c.Position, &c.IsArchived, &c.CreatedAt, &c.UpdatedAt,
			&c.Candidate.ID, &c.Candidate.FullName, &c.Candidate.Email, &c.Candidate.Phone,
			&c.Candidate.City, &c.Candidate.ExperienceYears, &c.Candidate.Rating, &c.Candidate.Skills,
		)
		return c, err
	})
}

func (t *pgTx) ListLiveCards(ctx context.Context, projectID int64) ([]pipeline.Card, error) {
	return t.queryCards(ctx, cardQuery+` WHERE a.project_id = $1 AND NOT a.is_archived`, projectID)
}

func (t *pgTx) ListApplications(ctx context.Context, f pipeline.ApplicationFilter) ([]pipeline.Card, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	archived := false
	if f.IsArchived != nil {
		archived = *f.IsArchived
	}
	add("a.is_archived = ?", archived)
	if f.ProjectID != nil {
		add("a.project_id = ?", *f.ProjectID)
	}
	if f.CandidateID != nil {
		add("a.candidate_id = ?", *f.CandidateID)
	}
	if f.StageID != nil {
		add("a.current_stage_id = ?", *f.StageID)
	}
	if f.MemberOf != nil {
		add("EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = a.project_id AND m.user_id = ?)", *f.MemberOf)
	}

	query := cardQuery + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY a.updated_at DESC, a.id DESC`
	return t.queryCards(ctx, query, args...)
}

func (t *pgTx) ListEvents(ctx context.Context, applicationID int64) ([]pipeline.StageChangeEvent, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, application_id, from_stage_id, to_stage_id, changed_by, changed_at
		FROM stage_change_events
		WHERE application_id = $1
		ORDER BY changed_at DESC, id DESC
	`, applicationID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (pipeline.StageChangeEvent, error) {
		var ev pipeline.StageChangeEvent
		err := row.Scan(&ev.ID, &ev.ApplicationID, &ev.FromStageID, &ev.ToStageID, &ev.ChangedBy, &ev.ChangedAt)
		return ev, err
	})
}

// LockColumns takes one transaction-scoped advisory lock per column.
func (t *pgTx) LockColumns(ctx context.Context, projectID int64, stageIDs ...int64) error {
	ids := append([]int64(nil), stageIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var prev int64
	for i, id := range ids {
		if i > 0 && id == prev {
			continue
		}
		prev = id
		key := fmt.Sprintf("column:%d:%d", projectID, id)
		if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
			return fmt.Errorf("lock column %s: %w", key, err)
		}
	}
	return nil
}

func (t *pgTx) InsertStage(ctx context.Context, s *pipeline.Stage) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stages (project_id, name, system_key, "order", is_final)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.ProjectID, s.Name, s.SystemKey, s.Order, s.IsFinal).Scan(&s.ID)
	if db.IsUniqueViolation(err, "uniq_stage_system_key") {
		return pipeline.ErrDuplicate
	}
	return err
}

func (t *pgTx) EnsureMembership(ctx context.Context, projectID, userID int64, role rbac.MemberRole) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, projectID, userID, string(role))
	return err
}

func (t *pgTx) InsertApplication(ctx context.Context, app *pipeline.Application) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO applications (project_id, candidate_id, current_stage_id, position_in_stage)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, app.ProjectID, app.CandidateID, app.CurrentStageID, app.Position).
		Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if db.IsUniqueViolation(err, "uniq_live_application") {
		return pipeline.ErrDuplicate
	}
	return err
}

func (t *pgTx) UpdateApplicationStage(ctx context.Context, id, stageID int64, position int) (time.Time, error) {
	var updatedAt time.Time
	err := t.tx.QueryRow(ctx, `
		UPDATE applications
		SET current_stage_id = $2, position_in_stage = $3, updated_at = NOW()
		WHERE id = $1 AND NOT is_archived
		RETURNING updated_at
	`, id, stageID, position).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, notFound(err)
	}
	return updatedAt, nil
}

func (t *pgTx) SetPositions(ctx context.Context, projectID, stageID int64, orderedIDs []int64) (int, error) {
	if len(orderedIDs) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE applications a
		SET position_in_stage = o.pos
		FROM unnest($3::bigint[]) WITH ORDINALITY AS o(id, pos)
		WHERE a.id = o.id
		  AND a.project_id = $1 AND a.current_stage_id = $2 AND NOT a.is_archived
	`, projectID, stageID, orderedIDs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (t *pgTx) ArchiveApplication(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE applications SET is_archived = TRUE WHERE id = $1 AND NOT is_archived`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pipeline.ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev *pipeline.StageChangeEvent) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO stage_change_events (application_id, from_stage_id, to_stage_id, changed_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, changed_at
	`, ev.ApplicationID, ev.FromStageID, ev.ToStageID, ev.ChangedBy).Scan(&ev.ID, &ev.ChangedAt)
}

func (t *pgTx) Enqueue(ctx context.Context, msg pipeline.Message) error {
	return outbox.InsertEventInTx(ctx, t.tx, msg.AggregateType, msg.AggregateID, msg.RoutingKey, msg.Payload)
}
