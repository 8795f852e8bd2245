package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("/chat", "200", 10*time.Millisecond)
	m.RecordHTTPRequest("/chat", "200", 20*time.Millisecond)
	m.RecordPipelineResult("success", "fr")
	m.RecordPipelineResult("error", "unsupported")
	m.RecordSpecialist("neurologue")
	m.RecordDbOperation("read", "success", time.Millisecond)
	m.RecordConversationUpdate()

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/chat", "200")); got != 2 {
		t.Errorf("http requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PipelineResultsTotal.WithLabelValues("error", "unsupported")); got != 1 {
		t.Errorf("pipeline errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SpecialistsTotal.WithLabelValues("neurologue")); got != 1 {
		t.Errorf("specialists = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DbOperationsTotal.WithLabelValues("read", "success")); got != 1 {
		t.Errorf("db operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConversationUpdatesTotal); got != 1 {
		t.Errorf("conversation updates = %v, want 1", got)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordSpecialist("orl")
	if got := testutil.ToFloat64(b.SpecialistsTotal.WithLabelValues("orl")); got != 0 {
		t.Fatalf("second instance saw %v recommendations", got)
	}
}
