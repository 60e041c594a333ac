package pipeline

import (
	"context"
	"sort"
	"strconv"
)

// DefaultStageKey is the system key new applications land in when no stage is given.
const DefaultStageKey = "new"

// StageTemplate describes a stage created by ProvisionStages.
type StageTemplate struct {
	SystemKey string
	Name      string
	IsFinal   bool
}

// DefaultStages is the stage set every new project starts with. Orders are
// assigned 1..N in this order.
var DefaultStages = []StageTemplate{
	{SystemKey: "new", Name: "New"},
	{SystemKey: "screening", Name: "Screening"},
	{SystemKey: "interview", Name: "Interview"},
	{SystemKey: "offer", Name: "Offer"},
	{SystemKey: "hired", Name: "Hired", IsFinal: true},
	{SystemKey: "rejected", Name: "Rejected", IsFinal: true},
}

// SortStages orders stages by (order, id).
func SortStages(stages []Stage) {
	sort.SliceStable(stages, func(i, j int) bool {
		if stages[i].Order != stages[j].Order {
			return stages[i].Order < stages[j].Order
		}
		return stages[i].ID < stages[j].ID
	})
}

// ListStages returns the project's stages sorted by (order, id).
func ListStages(ctx context.Context, r Reader, projectID int64) ([]Stage, error) {
	stages, err := r.ListStages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	SortStages(stages)
	return stages, nil
}

// ResolveDefaultStage returns the "new" stage, or the lowest-order stage when
// the project has none with that key.
func ResolveDefaultStage(ctx context.Context, r Reader, projectID int64) (Stage, error) {
	stages, err := ListStages(ctx, r, projectID)
	if err != nil {
		return Stage{}, err
	}
	if len(stages) == 0 {
		return Stage{}, errNoStages(projectID)
	}
	for _, s := range stages {
		if s.SystemKey == DefaultStageKey {
			return s, nil
		}
	}
	return stages[0], nil
}

// FindStage resolves ref within the project. Stages of other projects are
// never matched. A zero ref resolves to the default stage.
func FindStage(ctx context.Context, r Reader, projectID int64, ref StageRef) (Stage, error) {
	if ref.IsZero() {
		return ResolveDefaultStage(ctx, r, projectID)
	}
	stages, err := r.ListStages(ctx, projectID)
	if err != nil {
		return Stage{}, err
	}
	for _, s := range stages {
		if s.ProjectID != projectID {
			continue
		}
		if ref.ID != nil && s.ID == *ref.ID {
			return s, nil
		}
		if ref.ID == nil && s.SystemKey == ref.SystemKey {
			return s, nil
		}
	}
	if ref.ID != nil {
		return Stage{}, errStageNotFound(projectID, strconv.FormatInt(*ref.ID, 10))
	}
	return Stage{}, errStageNotFound(projectID, strconv.Quote(ref.SystemKey))
}

// provisionStages inserts the DefaultStages the project does not have yet.
func provisionStages(ctx context.Context, tx Tx, projectID int64) ([]Stage, error) {
	existing, err := tx.ListStages(ctx, projectID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.SystemKey] = true
	}

	stages := existing
	for i, tpl := range DefaultStages {
		if have[tpl.SystemKey] {
			continue
		}
		s := Stage{
			ProjectID: projectID,
			Name:      tpl.Name,
			SystemKey: tpl.SystemKey,
			Order:     i + 1,
			IsFinal:   tpl.IsFinal,
		}
		if err := tx.InsertStage(ctx, &s); err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	SortStages(stages)
	return stages, nil
}
