package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"hirepipe/pkg/rbac"
)

type memberKey struct{ project, user int64 }

type memState struct {
	projects     map[int64]Project
	candidates   map[int64]CandidateSummary
	members      map[memberKey]rbac.MemberRole
	stages       map[int64]Stage
	applications map[int64]Application
	events       []StageChangeEvent
	outbox       []Message
	nextID       int64
}

func (s *memState) clone() *memState {
	c := &memState{
		projects:     make(map[int64]Project, len(s.projects)),
		candidates:   make(map[int64]CandidateSummary, len(s.candidates)),
		members:      make(map[memberKey]rbac.MemberRole, len(s.members)),
		stages:       make(map[int64]Stage, len(s.stages)),
		applications: make(map[int64]Application, len(s.applications)),
		events:       append([]StageChangeEvent(nil), s.events...),
		outbox:       append([]Message(nil), s.outbox...),
		nextID:       s.nextID,
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.candidates {
		c.candidates[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.stages {
		c.stages[k] = v
	}
	for k, v := range s.applications {
		c.applications[k] = v
	}
	return c
}

// MemoryStore is a Store kept in process memory. Transactions run one at a
// time on a private copy of the state that replaces the shared state only
// on commit, so a failed operation leaves nothing behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
	last  time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			projects:     map[int64]Project{},
			candidates:   map[int64]CandidateSummary{},
			members:      map[memberKey]rbac.MemberRole{},
			stages:       map[int64]Stage{},
			applications: map[int64]Application{},
		},
		now: time.Now,
	}
}

// SetClock replaces the time source used for timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) WithTx(ctx context.Context, operation string, fn TxFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(ctx, &memTx{store: m, st: work}); err != nil {
		return err
	}
	// a timed-out operation must not commit
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) WithSnapshot(ctx context.Context, fn TxFunc) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &memTx{store: m, st: m.state, readOnly: true})
}

// tick returns a timestamp strictly after the previous one. Callers hold mu.
func (m *MemoryStore) tick() time.Time {
	t := m.now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

// AddProject seeds a project and returns its id.
func (m *MemoryStore) AddProject(title string, ownerID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	id := m.state.nextID
	m.state.projects[id] = Project{ID: id, Title: title, OwnerID: ownerID}
	return id
}

// AddCandidate seeds a candidate and returns its id.
func (m *MemoryStore) AddCandidate(c CandidateSummary) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	c.ID = m.state.nextID
	m.state.candidates[c.ID] = c
	return c.ID
}

// AddMember seeds a project membership.
func (m *MemoryStore) AddMember(projectID, userID int64, role rbac.MemberRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.members[memberKey{projectID, userID}] = role
}

// AddStage seeds a stage and returns it with its id.
func (m *MemoryStore) AddStage(projectID int64, systemKey, name string, order int, isFinal bool) Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.nextID++
	s := Stage{ID: m.state.nextID, ProjectID: projectID, Name: name, SystemKey: systemKey, Order: order, IsFinal: isFinal}
	m.state.stages[s.ID] = s
	return s
}

// Messages returns the committed outbox messages.
func (m *MemoryStore) Messages() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Message(nil), m.state.outbox...)
}

var errReadOnly = errors.New("write in read-only transaction")

type memTx struct {
	store    *MemoryStore
	st       *memState
	readOnly bool
}

func (t *memTx) GetProject(ctx context.Context, id int64) (*Project, error) {
	p, ok := t.st.projects[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &p, nil
}

func (t *memTx) GetCandidate(ctx context.Context, id int64) (*CandidateSummary, error) {
	c, ok := t.st.candidates[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	c.Skills = append([]string(nil), c.Skills...)
	return &c, nil
}

func (t *memTx) GetMembership(ctx context.Context, projectID, userID int64) (rbac.MemberRole, bool, error) {
	role, ok := t.st.members[memberKey{projectID, userID}]
	if !ok || !role.Valid() {
		return "", false, nil
	}
	return role, true, nil
}

func (t *memTx) CandidateVisibleTo(ctx context.Context, candidateID, userID int64) (bool, error) {
	found := false
	for _, a := range t.st.applications {
		if a.CandidateID != candidateID {
			continue
		}
		found = true
		if _, ok := t.st.members[memberKey{a.ProjectID, userID}]; ok {
			return true, nil
		}
	}
	return !found, nil
}

func (t *memTx) ListStages(ctx context.Context, projectID int64) ([]Stage, error) {
	var out []Stage
	for _, s := range t.st.stages {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) GetApplication(ctx context.Context, id int64) (*Application, error) {
	a, ok := t.st.applications[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return &a, nil
}

func (t *memTx) LockApplication(ctx context.Context, id int64) (*Application, error) {
	return t.GetApplication(ctx, id)
}

func (t *memTx) FindLiveApplication(ctx context.Context, projectID, candidateID int64) (*Application, error) {
	for _, a := range t.st.applications {
		if a.ProjectID == projectID && a.CandidateID == candidateID && !a.IsArchived {
			return &a, nil
		}
	}
	return nil, nil
}

func (t *memTx) MaxPosition(ctx context.Context, projectID, stageID int64) (int, error) {
	top := 0
	for _, a := range t.column(projectID, stageID) {
		if a.Position > top {
			top = a.Position
		}
	}
	return top, nil
}

func (t *memTx) column(projectID, stageID int64) []Application {
	var out []Application
	for _, a := range t.st.applications {
		if a.ProjectID == projectID && a.CurrentStageID == stageID && !a.IsArchived {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *memTx) ListColumn(ctx context.Context, projectID, stageID int64) ([]Application, error) {
	return t.column(projectID, stageID), nil
}

func (t *memTx) card(a Application) Card {
	c := t.st.candidates[a.CandidateID]
	c.Skills = append([]string(nil), c.Skills...)
	return Card{Application: a, Candidate: c}
}

func (t *memTx) ListLiveCards(ctx context.Context, projectID int64) ([]Card, error) {
	var out []Card
	for _, a := range t.st.applications {
		if a.ProjectID == projectID && !a.IsArchived {
			out = append(out, t.card(a))
		}
	}
	return out, nil
}

func (t *memTx) ListApplications(ctx context.Context, f ApplicationFilter) ([]Card, error) {
	archived := false
	if f.IsArchived != nil {
		archived = *f.IsArchived
	}
	var out []Card
	for _, a := range t.st.applications {
		switch {
		case a.IsArchived != archived:
			continue
		case f.ProjectID != nil && a.ProjectID != *f.ProjectID:
			continue
		case f.CandidateID != nil && a.CandidateID != *f.CandidateID:
			continue
		case f.StageID != nil && a.CurrentStageID != *f.StageID:
			continue
		}
		if f.MemberOf != nil {
			if _, ok := t.st.members[memberKey{a.ProjectID, *f.MemberOf}]; !ok {
				continue
			}
		}
		out = append(out, t.card(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) ListEvents(ctx context.Context, applicationID int64) ([]StageChangeEvent, error) {
	var out []StageChangeEvent
	for _, ev := range t.st.events {
		if ev.ApplicationID == applicationID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ChangedAt.After(out[j].ChangedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (t *memTx) LockColumns(ctx context.Context, projectID int64, stageIDs ...int64) error {
	return ctx.Err()
}

func (t *memTx) nextID() int64 {
	t.st.nextID++
	return t.st.nextID
}

func (t *memTx) InsertStage(ctx context.Context, s *Stage) error {
	if t.readOnly {
		return errReadOnly
	}
	for _, existing := range t.st.stages {
		if existing.ProjectID == s.ProjectID && existing.SystemKey == s.SystemKey {
			return ErrDuplicate
		}
	}
	s.ID = t.nextID()
	t.st.stages[s.ID] = *s
	return nil
}

func (t *memTx) EnsureMembership(ctx context.Context, projectID, userID int64, role rbac.MemberRole) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.members[memberKey{projectID, userID}] = role
	return nil
}

func (t *memTx) InsertApplication(ctx context.Context, app *Application) error {
	if t.readOnly {
		return errReadOnly
	}
	if live, _ := t.FindLiveApplication(ctx, app.ProjectID, app.CandidateID); live != nil {
		return ErrDuplicate
	}
	if s, ok := t.st.stages[app.CurrentStageID]; !ok || s.ProjectID != app.ProjectID {
		return ErrRecordNotFound
	}
	now := t.store.tick()
	app.ID = t.nextID()
	app.CreatedAt = now
	app.UpdatedAt = now
	t.st.applications[app.ID] = *app
	return nil
}

func (t *memTx) UpdateApplicationStage(ctx context.Context, id, stageID int64, position int) (time.Time, error) {
	if t.readOnly {
		return time.Time{}, errReadOnly
	}
	a, ok := t.st.applications[id]
	if !ok || a.IsArchived {
		return time.Time{}, ErrRecordNotFound
	}
	if s, ok := t.st.stages[stageID]; !ok || s.ProjectID != a.ProjectID {
		return time.Time{}, ErrRecordNotFound
	}
	a.CurrentStageID = stageID
	a.Position = position
	a.UpdatedAt = t.store.tick()
	t.st.applications[id] = a
	return a.UpdatedAt, nil
}

func (t *memTx) SetPositions(ctx context.Context, projectID, stageID int64, orderedIDs []int64) (int, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	n := 0
	for i, id := range orderedIDs {
		a, ok := t.st.applications[id]
		if !ok || a.IsArchived || a.ProjectID != projectID || a.CurrentStageID != stageID {
			continue
		}
		a.Position = i + 1
		t.st.applications[id] = a
		n++
	}
	return n, nil
}

func (t *memTx) ArchiveApplication(ctx context.Context, id int64) error {
	if t.readOnly {
		return errReadOnly
	}
	a, ok := t.st.applications[id]
	if !ok || a.IsArchived {
		return ErrRecordNotFound
	}
	a.IsArchived = true
	t.st.applications[id] = a
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, ev *StageChangeEvent) error {
	if t.readOnly {
		return errReadOnly
	}
	ev.ID = t.nextID()
	ev.ChangedAt = t.store.tick()
	t.st.events = append(t.st.events, *ev)
	return nil
}

func (t *memTx) Enqueue(ctx context.Context, msg Message) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.outbox = append(t.st.outbox, msg)
	return nil
}
