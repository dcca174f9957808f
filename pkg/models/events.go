package models

import (
	"time"
)

// MetricKind classifies a generic metric point.
type MetricKind string

const (
	MetricKindCounter   MetricKind = "counter"
	MetricKindGauge     MetricKind = "gauge"
	MetricKindHistogram MetricKind = "histogram"
	MetricKindTimer     MetricKind = "timer"
)

// IsValid reports whether the kind is one of the known metric kinds.
func (k MetricKind) IsValid() bool {
	switch k {
	case MetricKindCounter, MetricKindGauge, MetricKindHistogram, MetricKindTimer:
		return true
	default:
		return false
	}
}

// MetricPoint is a generic named measurement. Points are immutable once
// recorded; newer points supersede older ones, nothing is updated in place.
type MetricPoint struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
	Kind      MetricKind        `json:"kind"`
}

// PerformanceEvent captures one completed request.
type PerformanceEvent struct {
	Endpoint     string    `json:"endpoint"`
	HTTPMethod   string    `json:"http_method"`
	StatusCode   int       `json:"status_code"`
	LatencyMs    float64   `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// BusinessEvent is a domain-level counter: emails sent, subscriptions
// changed, revenue booked.
type BusinessEvent struct {
	Name      string                 `json:"name"`
	Value     float64                `json:"value"`
	Timestamp time.Time              `json:"timestamp"`
	TenantID  string                 `json:"tenant_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ErrorSeverity classifies an error event.
type ErrorSeverity string

const (
	ErrorSeverityError ErrorSeverity = "error"
	ErrorSeverityWarn  ErrorSeverity = "warn"
	ErrorSeverityInfo  ErrorSeverity = "info"
	ErrorSeverityDebug ErrorSeverity = "debug"
)

// IsValid reports whether the severity is one of the known levels.
func (s ErrorSeverity) IsValid() bool {
	switch s {
	case ErrorSeverityError, ErrorSeverityWarn, ErrorSeverityInfo, ErrorSeverityDebug:
		return true
	default:
		return false
	}
}

// ErrorEvent captures an application error or notable condition.
type ErrorEvent struct {
	ID         string                 `json:"id"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Severity   ErrorSeverity          `json:"severity"`
	Timestamp  time.Time              `json:"timestamp"`
	UserID     string                 `json:"user_id,omitempty"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	Endpoint   string                 `json:"endpoint,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// MetricQuery selects generic metric points by name and time range.
type MetricQuery struct {
	Name  string
	Start time.Time
	End   time.Time
	Tags  map[string]string
	Limit int
}

// AggregateOp is an aggregation operation over a time bucket.
type AggregateOp string

const (
	AggregateSum   AggregateOp = "sum"
	AggregateAvg   AggregateOp = "avg"
	AggregateMin   AggregateOp = "min"
	AggregateMax   AggregateOp = "max"
	AggregateCount AggregateOp = "count"
)

// IsValid reports whether the operation is one of the known aggregations.
func (op AggregateOp) IsValid() bool {
	switch op {
	case AggregateSum, AggregateAvg, AggregateMin, AggregateMax, AggregateCount:
		return true
	default:
		return false
	}
}

// Bucket is the time-bucket width for aggregated queries.
type Bucket string

const (
	Bucket1m  Bucket = "1m"
	Bucket5m  Bucket = "5m"
	Bucket15m Bucket = "15m"
	Bucket1h  Bucket = "1h"
	Bucket1d  Bucket = "1d"
)

// Duration returns the bucket width, or 0 for an unknown bucket.
func (b Bucket) Duration() time.Duration {
	switch b {
	case Bucket1m:
		return time.Minute
	case Bucket5m:
		return 5 * time.Minute
	case Bucket15m:
		return 15 * time.Minute
	case Bucket1h:
		return time.Hour
	case Bucket1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// AggregateQuery groups metric values by truncated timestamp bucket.
type AggregateQuery struct {
	Name   string
	Start  time.Time
	End    time.Time
	Op     AggregateOp
	Bucket Bucket
}

// AggregatedPoint is one time-bucket of an aggregated query result.
type AggregatedPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
