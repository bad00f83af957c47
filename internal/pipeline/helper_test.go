package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/practicepulse/api/internal/model"
	"github.com/practicepulse/api/internal/store"
)

const testCSV = "Referral Source,Patient Count,Production,Month\n" +
	"Dr. Nguyen,14,18250.00,2025-07\n" +
	"Smile Direct Ads,9,6400.50,2025-07\n" +
	"Google Business Profile,22,30125.75,2025-07\n"

// stubAgents is a deterministic AgentRunner. Agents listed in fail return a
// failed result with that error text; everything else succeeds.
type stubAgents struct {
	mu    sync.Mutex
	fail  map[model.MonthlyAgentKey]string
	calls []model.MonthlyAgentKey
}

func newStubAgents() *stubAgents {
	return &stubAgents{fail: make(map[model.MonthlyAgentKey]string)}
}

func (s *stubAgents) RunAgent(_ context.Context, _ *model.Job, agent model.MonthlyAgentKey) model.AgentResult {
	s.mu.Lock()
	s.calls = append(s.calls, agent)
	s.mu.Unlock()

	if msg, ok := s.fail[agent]; ok {
		return model.AgentResult{Success: false, Error: &msg}
	}
	return model.AgentResult{Success: true, ResultID: "result-" + string(agent)}
}

func (s *stubAgents) called(agent model.MonthlyAgentKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.calls {
		if a == agent {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *stubAgents) {
	t.Helper()
	st := store.NewMemoryStore()
	agents := newStubAgents()
	engine := NewEngine(st, agents, nil, time.Minute)
	return engine, st, agents
}

func createCSVJob(t *testing.T, engine *Engine) *model.Job {
	t.Helper()
	job, err := engine.CreateJob(context.Background(), &model.JobCreateRequest{
		OrganizationID: "org-1",
		Source:         model.SourceCSV,
		File:           testCSV,
	})
	require.NoError(t, err)
	return job
}

func createManualJob(t *testing.T, engine *Engine) *model.Job {
	t.Helper()
	job, err := engine.CreateJob(context.Background(), &model.JobCreateRequest{
		OrganizationID: "org-1",
		Source:         model.SourceManual,
		ManualData: []model.PMSRecord{
			{ReferralSource: "Dr. Patel", PatientCount: 5, Production: 4200, Month: "2025-07"},
			{ReferralSource: "Community Fair", PatientCount: 3, Production: 950, Month: "2025-07"},
		},
	})
	require.NoError(t, err)
	return job
}

func getJob(t *testing.T, st store.Store, jobID string) *model.Job {
	t.Helper()
	job, err := st.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job
}

// requireStepOrderInvariant asserts that no step is completed while an
// earlier, non-skipped step is still pending, processing or failed.
func requireStepOrderInvariant(t *testing.T, detail model.AutomationStatusDetail) {
	t.Helper()
	blocked := false
	for _, key := range model.StepOrder {
		s := detail.Steps[key].Status
		if blocked {
			require.NotEqual(t, model.StepStatusCompleted, s,
				"step %s completed after an incomplete earlier step", key)
		}
		if s != model.StepStatusCompleted && s != model.StepStatusSkipped {
			blocked = true
		}
	}
}
