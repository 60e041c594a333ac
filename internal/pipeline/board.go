package pipeline

import "sort"

// BuildBoard groups live cards into the stage columns. Stages must already
// be sorted. Cards of a column are ordered by (position asc, updated_at desc,
// id asc); archived cards and cards of unknown stages are dropped.
func BuildBoard(projectID int64, stages []Stage, cards []Card) *Board {
	byStage := make(map[int64][]Card, len(stages))
	for _, c := range cards {
		if c.IsArchived || c.ProjectID != projectID {
			continue
		}
		byStage[c.CurrentStageID] = append(byStage[c.CurrentStageID], c)
	}

	board := &Board{ProjectID: projectID, Columns: make([]Column, 0, len(stages))}
	for _, s := range stages {
		col := byStage[s.ID]
		sortCards(col)
		if col == nil {
			col = []Card{}
		}
		board.Columns = append(board.Columns, Column{Stage: s, Cards: col})
	}
	return board
}

func sortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// Summarize counts the live cards of every column.
func Summarize(b *Board) *Summary {
	s := &Summary{ProjectID: b.ProjectID, Stages: make([]StageCount, 0, len(b.Columns))}
	for _, col := range b.Columns {
		s.Stages = append(s.Stages, StageCount{Stage: col.Stage, Count: len(col.Cards)})
		s.Total += len(col.Cards)
	}
	return s
}
