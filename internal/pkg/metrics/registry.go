package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "componentsdb_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "componentsdb_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "componentsdb_db_rows_affected",
			Help:                            "Number of rows affected by database write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "componentsdb_db_errors_total",
			Help: "Total database errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)
)

// Cache Metrics
var (
	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "componentsdb_cache_hits_total",
			Help: "Total cache hits by service and cache name",
		},
		[]string{"service", "cache_name"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "componentsdb_cache_misses_total",
			Help: "Total cache misses by service and cache name",
		},
		[]string{"service", "cache_name"},
	)

	// CacheSize tracks current cache size
	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "componentsdb_cache_entries",
			Help: "Current number of entries in cache",
		},
		[]string{"service", "cache_name"},
	)
)

// Federated Identity Metrics
var (
	// OIDCFetches tracks discovery and JWKS document fetches
	OIDCFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "componentsdb_oidc_fetches_total",
			Help: "Total OIDC document fetches by outcome",
		},
		[]string{"outcome"},
	)

	// OIDCFetchDuration tracks fetch latency
	OIDCFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:                            "componentsdb_oidc_fetch_duration_ms",
			Help:                            "OIDC document fetch duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
	)

	// TokenValidations tracks federated token validation results
	TokenValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "componentsdb_token_validations_total",
			Help: "Total federated token validations by result",
		},
		[]string{"result"},
	)
)

// Authentication Metrics
var (
	// AuthOperations tracks authentication provider operations
	AuthOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "componentsdb_auth_operations_total",
			Help: "Total authentication operations by method and status",
		},
		[]string{"method", "status"},
	)

	// AuthDuration tracks authentication operation latency
	AuthDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "componentsdb_auth_operation_duration_ms",
			Help:                            "Authentication operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method"},
	)
)
