// Package metrics exposes Prometheus collectors for translation, query
// execution and the result cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ruslano69/sqlbridge/pkg/sqlerr"
)

var (
	// translationsTotal counts template translations by dialect and outcome.
	translationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlbridge_translations_total",
			Help: "Total number of query template translations",
		},
		[]string{"dialect", "outcome"},
	)

	// queryDuration tracks native execution time, translation excluded.
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlbridge_query_duration_seconds",
			Help:    "Duration of native query execution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dialect", "outcome"},
	)

	// cacheLookupsTotal counts result cache lookups by result: hit, miss, error.
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlbridge_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"result"},
	)
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
	// CacheBypass counts lookups skipped while the Redis breaker is open.
	CacheBypass = "bypass"
)

// Outcome returns the label value for err: "ok", the sqlerr code name, or
// "error" for untyped errors.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := sqlerr.CodeOf(err); code != 0 {
		return code.Name()
	}
	return "error"
}

// ObserveTranslation records one translation attempt.
func ObserveTranslation(dialect string, err error) {
	translationsTotal.WithLabelValues(dialect, Outcome(err)).Inc()
}

// ObserveQuery records one native execution.
func ObserveQuery(dialect string, elapsed time.Duration, err error) {
	queryDuration.WithLabelValues(dialect, Outcome(err)).Observe(elapsed.Seconds())
}

// ObserveCacheLookup records one cache lookup.
func ObserveCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}
