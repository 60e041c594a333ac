package api

import (
	"time"

	"hirepipe/internal/pipeline"
)

type candidateResponse struct {
	ID              int64    `json:"id"`
	FullName        string   `json:"full_name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone,omitempty"`
	City            string   `json:"city,omitempty"`
	ExperienceYears int      `json:"experience_years"`
	Rating          int      `json:"rating"`
	Skills          []string `json:"skills"`
}

type cardResponse struct {
	ID             int64             `json:"id"`
	ProjectID      int64             `json:"project_id"`
	CandidateID    int64             `json:"candidate_id"`
	CurrentStageID int64             `json:"current_stage_id"`
	Position       int               `json:"position_in_stage"`
	IsArchived     bool              `json:"is_archived"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Candidate      candidateResponse `json:"candidate"`
}

type stageResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SystemKey string `json:"system_key"`
	Order     int    `json:"order"`
	IsFinal   bool   `json:"is_final"`
}

type stageCountResponse struct {
	stageResponse
	CandidatesCount int `json:"candidates_count"`
}

type columnResponse struct {
	stageCountResponse
	Applications []cardResponse `json:"applications"`
}

type boardResponse struct {
	ProjectID int64            `json:"project_id"`
	Stages    []columnResponse `json:"stages"`
}

type summaryResponse struct {
	ProjectID       int64                `json:"project_id"`
	Stages          []stageCountResponse `json:"stages"`
	TotalCandidates int                  `json:"total_candidates"`
}

type eventResponse struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	FromStageID   *int64    `json:"from_stage_id"`
	ToStageID     int64     `json:"to_stage_id"`
	ChangedBy     *int64    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

func toCard(c pipeline.Card) cardResponse {
	skills := c.Candidate.Skills
	if skills == nil {
		skills = []string{}
	}
	return cardResponse{
		ID:             c.ID,
		ProjectID:      c.ProjectID,
		CandidateID:    c.CandidateID,
		CurrentStageID: c.CurrentStageID,
		Position:       c.Position,
		IsArchived:     c.IsArchived,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		Candidate: candidateResponse{
			ID:              c.Candidate.ID,
			FullName:        c.Candidate.FullName,
			Email:           c.Candidate.Email,
			Phone:           c.Candidate.Phone,
			City:            c.Candidate.City,
			ExperienceYears: c.Candidate.ExperienceYears,
			Rating:          c.Candidate.Rating,
			Skills:          skills,
		},
	}
}

func toCards(cards []pipeline.Card) []cardResponse {
	out := make([]cardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, toCard(c))
	}
	return out
}

func toStage(s pipeline.Stage) stageResponse {
	return stageResponse{ID: s.ID, Name: s.Name, SystemKey: s.SystemKey, Order: s.Order, IsFinal: s.IsFinal}
}

func toBoard(b *pipeline.Board) boardResponse {
	out := boardResponse{ProjectID: b.ProjectID, Stages: make([]columnResponse, 0, len(b.Columns))}
	for _, col := range b.Columns {
		out.Stages = append(out.Stages, columnResponse{
			stageCountResponse: stageCountResponse{stageResponse: toStage(col.Stage), CandidatesCount: len(col.Cards)},
			Applications:       toCards(col.Cards),
		})
	}
	return out
}

func toSummary(s *pipeline.Summary) summaryResponse {
	out := summaryResponse{ProjectID: s.ProjectID, TotalCandidates: s.Total, Stages: make([]stageCountResponse, 0, len(s.Stages))}
	for _, sc := range s.Stages {
		out.Stages = append(out.Stages, stageCountResponse{stageResponse: toStage(sc.Stage), CandidatesCount: sc.Count})
	}
	return out
}

func toEvents(events []pipeline.StageChangeEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:            e.ID,
			ApplicationID: e.ApplicationID,
			FromStageID:   e.FromStageID,
			ToStageID:     e.ToStageID,
			ChangedBy:     e.ChangedBy,
			ChangedAt:     e.ChangedAt,
		})
	}
	return out
}
