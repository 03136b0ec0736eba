package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/internal/domain/event"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

type mockDefinitionRepo struct {
	defs map[int64]*entity.WorkflowDefinition
	err  error
}

func newMockDefinitionRepo(defs ...*entity.WorkflowDefinition) *mockDefinitionRepo {
	r := &mockDefinitionRepo{defs: make(map[int64]*entity.WorkflowDefinition)}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			panic(err)
		}
		r.defs[d.ID] = d
	}
	return r
}

func (r *mockDefinitionRepo) Create(_ context.Context, def *entity.WorkflowDefinition) error {
	def.ID = int64(len(r.defs) + 1)
	r.defs[def.ID] = def
	return nil
}

func (r *mockDefinitionRepo) GetByID(_ context.Context, id int64) (*entity.WorkflowDefinition, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.defs[id], nil
}

func (r *mockDefinitionRepo) List(_ context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	var out []*entity.WorkflowDefinition
	for _, d := range r.defs {
		if entityType == "" || d.EntityType == entityType {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *mockDefinitionRepo) ListActiveByEntityType(_ context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*entity.WorkflowDefinition
	for _, d := range r.defs {
		if d.IsActive && d.EntityType == entityType {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *mockDefinitionRepo) SetActive(_ context.Context, id int64, active bool) error {
	if d, ok := r.defs[id]; ok {
		d.IsActive = active
	}
	return nil
}

// mockInstanceRepo keeps deep copies so the engine never shares memory with storage
type mockInstanceRepo struct {
	mu        sync.Mutex
	nextID    int64
	nextStep  int64
	instances map[int64]*entity.ApprovalInstance
	saves     int

	// loadBarrier, when set, holds every GetByID until all expected loads arrive
	loadBarrier *sync.WaitGroup
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: make(map[int64]*entity.ApprovalInstance)}
}

func (r *mockInstanceRepo) assignStepIDs(inst *entity.ApprovalInstance) {
	for _, s := range inst.Steps {
		s.InstanceID = inst.ID
		if s.ID == 0 {
			r.nextStep++
			s.ID = r.nextStep
		}
	}
}

func (r *mockInstanceRepo) Create(_ context.Context, inst *entity.ApprovalInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	inst.ID = r.nextID
	inst.Version = 1
	r.assignStepIDs(inst)
	r.instances[inst.ID] = inst.Clone()
	return nil
}

func (r *mockInstanceRepo) GetByID(_ context.Context, id int64) (*entity.ApprovalInstance, error) {
	r.mu.Lock()
	barrier := r.loadBarrier
	inst, ok := r.instances[id]
	var out *entity.ApprovalInstance
	if ok {
		out = inst.Clone()
	}
	r.mu.Unlock()

	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return out, nil
}

func (r *mockInstanceRepo) GetActiveByEntity(_ context.Context, entityType, entityID string) (*entity.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.EntityType == entityType && inst.EntityID == entityID && inst.Status == entity.StatusInProgress {
			return inst.Clone(), nil
		}
	}
	return nil, nil
}

func (r *mockInstanceRepo) Save(_ context.Context, inst *entity.ApprovalInstance, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.instances[inst.ID]
	if !ok || stored.Version != expectedVersion {
		return port.ErrVersionConflict
	}
	r.saves++
	inst.Version = expectedVersion + 1
	r.assignStepIDs(inst)
	r.instances[inst.ID] = inst.Clone()
	return nil
}

func (r *mockInstanceRepo) ListInProgress(_ context.Context) ([]*entity.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalInstance
	for _, inst := range r.instances {
		if inst.Status == entity.StatusInProgress {
			out = append(out, inst.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockInstanceRepo) ListPendingForApprover(_ context.Context, userID string) ([]*entity.ApprovalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalInstance
	for _, inst := range r.instances {
		if inst.Status != entity.StatusInProgress {
			continue
		}
		if rec := inst.CurrentStep(); rec != nil && rec.IsEligible(userID) {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}

func (r *mockInstanceRepo) stored(id int64) *entity.ApprovalInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instances[id].Clone()
}

// overwrite simulates a concurrent writer bumping the stored version
func (r *mockInstanceRepo) overwrite(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[id].Version++
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	records []*entity.ApprovalHistory
}

func (r *mockHistoryRepo) Create(_ context.Context, h *entity.ApprovalHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = int64(len(r.records) + 1)
	r.records = append(r.records, h)
	return nil
}

func (r *mockHistoryRepo) GetByInstanceID(_ context.Context, instanceID int64) ([]*entity.ApprovalHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ApprovalHistory
	for _, h := range r.records {
		if h.InstanceID == instanceID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockDirectory struct {
	mu        sync.Mutex
	heads     map[string]string
	positions map[string][]string
	roles     map[string][]string
	err       error
	calls     int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		heads:     make(map[string]string),
		positions: make(map[string][]string),
		roles:     make(map[string][]string),
	}
}

func (d *mockDirectory) GetDepartmentHead(_ context.Context, departmentID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.heads[departmentID], d.err
}

func (d *mockDirectory) GetUsersByPosition(_ context.Context, positionID, departmentID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.positions[positionID+"|"+departmentID], d.err
}

func (d *mockDirectory) GetUsersByRole(_ context.Context, roleID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.roles[roleID], d.err
}

func (d *mockDirectory) setRole(roleID string, users ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[roleID] = users
}

func (d *mockDirectory) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []*event.Event
}

func (s *recordingSink) Notify(_ context.Context, evt *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSink) types() []event.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

type countingMetrics struct {
	mu        sync.Mutex
	created   int
	completed map[string]int
	decisions map[string]int
	conflicts int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{completed: map[string]int{}, decisions: map[string]int{}}
}

func (m *countingMetrics) InstanceCreated(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *countingMetrics) InstanceCompleted(_ string, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed[status]++
}

func (m *countingMetrics) DecisionRecorded(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[action]++
}

func (m *countingMetrics) Conflict(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *countingMetrics) SweepCompleted(int, int, int, int) {}

var errDirectoryDown = errors.New("directory unavailable")

// harness wires the engine to in-memory collaborators
type harness struct {
	defs      *mockDefinitionRepo
	instances *mockInstanceRepo
	history   *mockHistoryRepo
	directory *mockDirectory
	clock     *fakeClock
	sink      *recordingSink
	metrics   *countingMetrics
	engine    Engine
}

func newHarness(defs ...*entity.WorkflowDefinition) *harness {
	h := &harness{
		defs:      newMockDefinitionRepo(defs...),
		instances: newMockInstanceRepo(),
		history:   &mockHistoryRepo{},
		directory: newMockDirectory(),
		clock:     &fakeClock{now: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)},
		sink:      &recordingSink{},
		metrics:   newCountingMetrics(),
	}
	h.engine = NewEngine(h.defs, h.instances, h.history, mockTxManager{}, h.directory,
		WithClock(h.clock),
		WithNotifier(h.sink),
		WithMetrics(h.metrics),
	)
	return h
}

// standardLeave has a required department head step then an HR step that
// auto-approves after 72 hours
func standardLeave() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		ID:         1,
		Name:       "Standard Leave",
		EntityType: entity.EntityTypeLeave,
		IsActive:   true,
		Steps: []*entity.StepDefinition{
			{StepOrder: 1, ApproverType: entity.ApproverDepartmentHead, IsRequired: true},
			{StepOrder: 2, ApproverType: entity.ApproverRoleBased, RoleID: "hr_manager", IsRequired: true, AutoApprove: true, AutoApproveAfterHours: 72},
		},
	}
}

func leaveSubject(entityID string) entity.Subject {
	return entity.Subject{
		EntityType:   entity.EntityTypeLeave,
		EntityID:     entityID,
		RequesterID:  "emp-1",
		DepartmentID: strPtr("D"),
	}
}
