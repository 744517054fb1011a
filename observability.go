package fsx

import (
	"context"
	"time"

	"github.com/gostratum/metricsx"
	"github.com/gostratum/tracingx"
)

// Instrumenter wraps storage operations with metrics and tracing.
// A nil *Instrumenter and one built without metrics or tracer are no-ops.
type Instrumenter struct {
	metrics metricsx.Metrics
	tracer  tracingx.Tracer
	now     func() time.Time
}

// NewInstrumenter creates a new instrumenter with optional metrics and tracing
func NewInstrumenter(metrics metricsx.Metrics, tracer tracingx.Tracer) *Instrumenter {
	return &Instrumenter{
		metrics: metrics,
		tracer:  tracer,
		now:     time.Now,
	}
}

// withClock returns a copy of i that measures durations with clock
func (i *Instrumenter) withClock(clock func() time.Time) *Instrumenter {
	c := *i
	c.now = clock
	return &c
}

func (i *Instrumenter) clock() time.Time {
	if i.now == nil {
		return time.Now()
	}
	return i.now()
}

// TraceOperation runs fn inside a client span and records its outcome
func (i *Instrumenter) TraceOperation(ctx context.Context, operation, path string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	var span tracingx.Span
	if i.tracer != nil {
		ctx, span = i.tracer.Start(ctx, "storage."+operation,
			tracingx.WithSpanKind(tracingx.SpanKindClient),
			tracingx.WithAttributes(map[string]any{
				"storage.operation": operation,
				"storage.path":      path,
			}),
		)
		defer span.End()
	}

	start := i.clock()
	err := fn(ctx)
	duration := i.clock().Sub(start).Seconds()

	if i.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}

		i.metrics.Counter("storage_operations_total",
			metricsx.WithHelp("Total number of storage operations"),
			metricsx.WithLabels("operation", "status"),
		).Inc(operation, status)

		i.metrics.Histogram("storage_operation_duration_seconds",
			metricsx.WithHelp("Storage operation duration in seconds"),
			metricsx.WithLabels("operation"),
			metricsx.WithBuckets(.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10),
		).Observe(duration, operation)
	}

	if span != nil && err != nil {
		span.SetError(err)
	}

	return err
}

// RecordOperationSize records the size of data transferred
func (i *Instrumenter) RecordOperationSize(operation string, size int64) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Histogram("storage_operation_bytes",
		metricsx.WithHelp("Storage operation data size in bytes"),
		metricsx.WithLabels("operation"),
		metricsx.WithBuckets(1024, 10240, 102400, 1024000, 10240000, 104857600, 1073741824), // 1KB to 1GB
	).Observe(float64(size), operation)
}

// RecordMultipartOperation records multipart upload metrics
func (i *Instrumenter) RecordMultipartOperation(operation string, partCount int) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Counter("storage_multipart_operations_total",
		metricsx.WithHelp("Total number of multipart upload operations"),
		metricsx.WithLabels("operation"),
	).Inc(operation)

	if partCount > 0 {
		i.metrics.Counter("storage_multipart_parts_total",
			metricsx.WithHelp("Total number of multipart upload parts"),
		).Add(float64(partCount))
	}
}

// RecordListOperation records the entries returned by a directory listing
// and whether the listing was cut short by a failed page
func (i *Instrumenter) RecordListOperation(itemCount int, partial bool) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Histogram("storage_list_items",
		metricsx.WithHelp("Number of items returned in list operations"),
		metricsx.WithBuckets(1, 10, 50, 100, 500, 1000, 5000, 10000),
	).Observe(float64(itemCount))

	if partial {
		i.metrics.Counter("storage_list_partial_total",
			metricsx.WithHelp("Number of listings that returned partial results"),
		).Inc()
	}
}

// RecordBatchOperation records batch operation metrics
func (i *Instrumenter) RecordBatchOperation(operation string, totalCount, failedCount int) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Histogram("storage_batch_operation_size",
		metricsx.WithHelp("Number of items in batch operations"),
		metricsx.WithLabels("operation"),
		metricsx.WithBuckets(1, 5, 10, 25, 50, 100, 250, 500, 1000),
	).Observe(float64(totalCount), operation)

	if failedCount > 0 {
		i.metrics.Counter("storage_batch_operation_failures_total",
			metricsx.WithHelp("Number of failed items in batch operations"),
			metricsx.WithLabels("operation"),
		).Add(float64(failedCount), operation)
	}
}

// RecordPresignOperation records signed URL generation
func (i *Instrumenter) RecordPresignOperation(operation string) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Counter("storage_presign_operations_total",
		metricsx.WithHelp("Total number of presigned URL operations"),
		metricsx.WithLabels("operation"),
	).Inc(operation)
}
