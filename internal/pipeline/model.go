package pipeline

import (
	"time"

	"hirepipe/pkg/rbac"
)

// Stage is one ordered column of a project's hiring pipeline.
type Stage struct {
	ID        int64
	ProjectID int64
	Name      string
	SystemKey string
	Order     int
	IsFinal   bool
}

// Project is the external project identity the pipeline hangs off.
type Project struct {
	ID      int64
	Title   string
	OwnerID int64
}

// CandidateSummary is the candidate part of an application card.
type CandidateSummary struct {
	ID              int64
	FullName        string
	Email           string
	Phone           string
	City            string
	ExperienceYears int
	Rating          int
	Skills          []string
}

// Application pins a candidate to exactly one stage of one project.
type Application struct {
	ID             int64
	ProjectID      int64
	CandidateID    int64
	CurrentStageID int64
	Position       int
	IsArchived     bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Card is an application joined with its candidate summary.
type Card struct {
	Application
	Candidate CandidateSummary
}

// StageChangeEvent is an immutable record of one stage transition.
// FromStageID is nil for the event written on creation.
type StageChangeEvent struct {
	ID            int64
	ApplicationID int64
	FromStageID   *int64
	ToStageID     int64
	ChangedBy     *int64
	ChangedAt     time.Time
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	UserID      int64
	Role        rbac.Role
	IsSuperuser bool
}

// ID returns the actor's user id for audit columns, nil when unknown.
func (a Actor) ID() *int64 {
	if a.UserID == 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// StageRef selects a stage by id or by system key. The zero value asks for
// the project's default stage.
type StageRef struct {
	ID        *int64
	SystemKey string
}

// IsZero reports whether neither an id nor a key was given.
func (r StageRef) IsZero() bool {
	return r.ID == nil && r.SystemKey == ""
}

// Column is one stage of the board with its ordered live cards.
type Column struct {
	Stage Stage
	Cards []Card
}

// Board is the kanban view of a project.
type Board struct {
	ProjectID int64
	Columns   []Column
}

// StageCount is a stage with its number of live applications.
type StageCount struct {
	Stage
	Count int
}

// Summary is the per-stage head count of a project.
type Summary struct {
	ProjectID int64
	Stages    []StageCount
	Total     int
}

// ApplicationFilter narrows ListApplications. Nil fields do not filter.
// IsArchived nil means live applications only.
type ApplicationFilter struct {
	ProjectID   *int64
	CandidateID *int64
	StageID     *int64
	IsArchived  *bool

	// MemberOf restricts results to projects where this user is a member.
	// Set by the service from the actor; nil means unrestricted.
	MemberOf *int64
}

// CreateInput is the payload of CreateApplication.
type CreateInput struct {
	ProjectID   int64
	CandidateID int64
	Stage       StageRef
}
