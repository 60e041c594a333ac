package mq

import "time"

// Routing keys of the events published for the pipeline.
const (
	RoutingApplicationCreated  = "pipeline.application.created"
	RoutingApplicationMoved    = "pipeline.application.moved"
	RoutingApplicationArchived = "pipeline.application.archived"
	RoutingColumnReordered     = "pipeline.column.reordered"
)

// Aggregate types stored in outbox_events.aggregate_type.
const (
	AggregateApplication = "application"
	AggregateColumn      = "column"
)

// ApplicationCreatedPayload 候选人进入项目 pipeline
type ApplicationCreatedPayload struct {
	ApplicationID int64     `json:"application_id"`
	ProjectID     int64     `json:"project_id"`
	CandidateID   int64     `json:"candidate_id"`
	StageID       int64     `json:"stage_id"`
	Position      int       `json:"position_in_stage"`
	ActorID       *int64    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// ApplicationMovedPayload 申请从一个阶段移动到另一个阶段
type ApplicationMovedPayload struct {
	ApplicationID int64     `json:"application_id"`
	ProjectID     int64     `json:"project_id"`
	CandidateID   int64     `json:"candidate_id"`
	FromStageID   int64     `json:"from_stage_id"`
	ToStageID     int64     `json:"to_stage_id"`
	Position      int       `json:"position_in_stage"`
	ActorID       *int64    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// ApplicationArchivedPayload 申请被归档
type ApplicationArchivedPayload struct {
	ApplicationID int64     `json:"application_id"`
	ProjectID     int64     `json:"project_id"`
	CandidateID   int64     `json:"candidate_id"`
	StageID       int64     `json:"stage_id"`
	ActorID       *int64    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}

// ColumnReorderedPayload 某一列被手动重新排序
type ColumnReorderedPayload struct {
	ProjectID      int64     `json:"project_id"`
	StageID        int64     `json:"stage_id"`
	ApplicationIDs []int64   `json:"ordered_application_ids"`
	ActorID        *int64    `json:"actor_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	TraceID        string    `json:"trace_id,omitempty"`
}
