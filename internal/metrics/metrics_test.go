package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	body := scrape(t, collector)
	if !strings.Contains(body, `topicwatch_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}

	if !strings.Contains(body, `topicwatch_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("request_duration_seconds_count metric not recorded, body=%q", body)
	}
}

func TestCollectorRecordsPipelineMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.RunStarted("src-1")
	collector.ItemsDiscovered("src-1", 4)
	collector.EventsExtracted("src-1", 7)
	collector.ExtractionFailures("src-1", 1)
	collector.RunFinished("src-1", true, 90*time.Second)

	collector.RunStarted("src-2")
	collector.RunFinished("src-2", false, time.Second)

	collector.EventCreated("topic-1")
	collector.EventMerged("topic-1")
	collector.EventMerged("topic-1")

	body := scrape(t, collector)

	for _, want := range []string{
		`topicwatch_pipeline_runs_total{source_id="src-1",status="started"} 1`,
		`topicwatch_pipeline_runs_total{source_id="src-1",status="succeeded"} 1`,
		`topicwatch_pipeline_runs_total{source_id="src-2",status="failed"} 1`,
		`topicwatch_pipeline_items_discovered_total{source_id="src-1"} 4`,
		`topicwatch_pipeline_events_extracted_total{source_id="src-1"} 7`,
		`topicwatch_pipeline_extraction_failures_total{source_id="src-1"} 1`,
		`topicwatch_pipeline_run_duration_seconds_count{source_id="src-1"} 1`,
		`topicwatch_consolidation_events_created_total{topic_id="topic-1"} 1`,
		`topicwatch_consolidation_events_merged_total{topic_id="topic-1"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing metric %q, body=%q", want, body)
		}
	}
}
