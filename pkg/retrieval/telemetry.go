package retrieval

import (
	"context"
	"time"

	"github.com/jarkius/agent-orchestra/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	searchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent_orchestra",
		Subsystem: "retrieval",
		Name:      "search_latency_seconds",
		Help:      "Hybrid search latency by query type.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"query_type"})

	searchResultCount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent_orchestra",
		Subsystem: "retrieval",
		Name:      "search_result_count",
		Help:      "Number of results returned per hybrid search.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"query_type"})
)

// RegisterMetrics registers the retrieval engine's prometheus collectors
// with reg. Safe to call once per process.
func RegisterMetrics(reg prometheus.Registerer) error {
	if err := reg.Register(searchLatency); err != nil {
		return err
	}
	return reg.Register(searchResultCount)
}

// recordTelemetry emits the search log entry (spec §4.3.6) and updates the
// prometheus histograms. Logging failures never fail the search itself.
func recordTelemetry(ctx context.Context, st *store.Store, query string, qt QueryType, resultCount int, started time.Time, source string, agentID *int64) {
	elapsed := time.Since(started)
	searchLatency.WithLabelValues(string(qt)).Observe(elapsed.Seconds())
	searchResultCount.WithLabelValues(string(qt)).Observe(float64(resultCount))

	if st == nil {
		return
	}
	_ = st.LogSearch(ctx, store.SearchLogEntry{
		Query:       query,
		QueryType:   string(qt),
		ResultCount: resultCount,
		LatencyMS:   elapsed.Milliseconds(),
		Source:      source,
		AgentID:     agentID,
	})
}
