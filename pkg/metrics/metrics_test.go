package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/vango-dev/projectform/pkg/imagedelete"
	"github.com/vango-dev/projectform/pkg/staged"
	"github.com/vango-dev/projectform/pkg/upload"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	return m.GetGauge().GetValue()
}

func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(WithRegistry(reg), WithNamespace("test")), reg
}

func TestStagingCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	var obs staged.Observer = m
	obs.FilesStaged(3)
	obs.FilesStaged(0)
	obs.FilesRejected(staged.ReasonTooLarge, 2)
	obs.FilesRejected(staged.ReasonCapacity, 1)
	obs.PreviewRendered()
	obs.PreviewRendered()
	obs.PreviewDropped()
	obs.PreviewFailed()

	if got := counterValue(t, m.filesStaged); got != 3 {
		t.Errorf("files staged = %v, want 3", got)
	}
	if got := counterValue(t, m.filesRejected.WithLabelValues("too_large")); got != 2 {
		t.Errorf("too_large = %v, want 2", got)
	}
	if got := counterValue(t, m.filesRejected.WithLabelValues("capacity")); got != 1 {
		t.Errorf("capacity = %v, want 1", got)
	}
	for result, want := range map[string]float64{"rendered": 2, "dropped": 1, "failed": 1} {
		if got := counterValue(t, m.previews.WithLabelValues(result)); got != want {
			t.Errorf("previews{%s} = %v, want %v", result, got, want)
		}
	}
}

func TestDeleteOutcomes(t *testing.T) {
	m, _ := newTestMetrics(t)

	var obs imagedelete.Observer = m
	obs.DeleteFinished(imagedelete.OutcomeRemoved)
	obs.DeleteFinished(imagedelete.OutcomeRejected)
	obs.DeleteFinished(imagedelete.OutcomeRejected)

	if got := counterValue(t, m.deletes.WithLabelValues("removed")); got != 1 {
		t.Errorf("removed = %v, want 1", got)
	}
	if got := counterValue(t, m.deletes.WithLabelValues("rejected")); got != 2 {
		t.Errorf("rejected = %v, want 2", got)
	}
}

func TestUploadsAndSessions(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.UploadSaved(upload.Response{TempID: "x", Size: 2048})
	m.UploadSaved(upload.Response{TempID: "y", Size: 4096})
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.ProtocolError("P402")
	m.ProtocolError("")

	if got := counterValue(t, m.uploads); got != 2 {
		t.Errorf("uploads = %v, want 2", got)
	}
	if got := histogramCount(t, m.uploadBytes); got != 2 {
		t.Errorf("upload size samples = %d, want 2", got)
	}
	if got := gaugeValue(t, m.activeSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
	if got := counterValue(t, m.protocolErrors.WithLabelValues("unknown")); got != 1 {
		t.Errorf("unknown protocol errors = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FilesStaged(1)
	m.FilesRejected(staged.ReasonNotImage, 1)
	m.PreviewRendered()
	m.PreviewDropped()
	m.PreviewFailed()
	m.DeleteFinished(imagedelete.OutcomeError)
	m.UploadSaved(upload.Response{})
	m.SessionOpened()
	m.SessionClosed()
	m.ProtocolError("P401")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.FilesStaged(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "test_files_staged_total 1") {
		t.Errorf("exposition missing counter:\n%s", body)
	}
}

func TestConstLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithSubsystem("form"), WithConstLabels(prometheus.Labels{"env": "test"}))
	m.SessionOpened()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "projectform_form_active_sessions" {
			continue
		}
		labels := mf.GetMetric()[0].GetLabel()
		if len(labels) != 1 || labels[0].GetName() != "env" || labels[0].GetValue() != "test" {
			t.Errorf("labels = %v", labels)
		}
		return
	}
	t.Error("active_sessions not gathered")
}
