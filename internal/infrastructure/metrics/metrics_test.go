package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()

	m.InstanceCreated("leave")
	m.InstanceCreated("leave")
	m.InstanceCompleted("leave", "approved")
	m.DecisionRecorded("approve")
	m.Conflict("decision")
	m.SweepCompleted(10, 3, 2, 1)

	out := scrape(t, m)
	assert.Contains(t, out, `hr_approval_instances_created_total{entity_type="leave"} 2`)
	assert.Contains(t, out, `hr_approval_instances_completed_total{entity_type="leave",status="approved"} 1`)
	assert.Contains(t, out, `hr_approval_decisions_total{action="approve"} 1`)
	assert.Contains(t, out, `hr_approval_version_conflicts_total{operation="decision"} 1`)
	assert.Contains(t, out, "hr_approval_sweep_runs_total 1")
	assert.Contains(t, out, "hr_approval_sweep_examined_total 10")
	assert.Contains(t, out, "hr_approval_sweep_auto_approved_total 3")
	assert.Contains(t, out, "hr_approval_sweep_failures_total 1")
	assert.Contains(t, out, "hr_approval_sweep_last_conflicts 2")
	assert.Contains(t, out, "go_goroutines")
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a := New()
	b := New()
	a.DecisionRecorded("reject")

	assert.Contains(t, scrape(t, a), `hr_approval_decisions_total{action="reject"} 1`)
	assert.NotContains(t, scrape(t, b), `action="reject"`)
}
