// Package observability emits operational metrics to CloudWatch.
package observability

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes counters and durations under a single namespace.
// A nil client turns every call into a no-op, which is what tests and
// local development use.
type Metrics struct {
	namespace string
	client    *cloudwatch.Client
}

// NewMetrics creates a metrics publisher.
func NewMetrics(namespace string, client *cloudwatch.Client) *Metrics {
	return &Metrics{namespace: namespace, client: client}
}

// IncrementCounter adds one to a named counter with optional
// dimensions. Publishing is best-effort; a failed PutMetricData never
// affects the calling turn.
func (m *Metrics) IncrementCounter(ctx context.Context, name string, dimensions map[string]string) {
	if m == nil || m.client == nil {
		return
	}

	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       types.StandardUnitCount,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: toDimensions(dimensions),
	}

	//nolint:errcheck // metrics are fire-and-forget
	m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []types.MetricDatum{datum},
	})
}

// RecordDuration publishes a millisecond timing metric.
func (m *Metrics) RecordDuration(ctx context.Context, name string, d time.Duration, dimensions map[string]string) {
	if m == nil || m.client == nil {
		return
	}

	datum := types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       types.StandardUnitMilliseconds,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: toDimensions(dimensions),
	}

	//nolint:errcheck // metrics are fire-and-forget
	m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []types.MetricDatum{datum},
	})
}

func toDimensions(dims map[string]string) []types.Dimension {
	if len(dims) == 0 {
		return nil
	}
	out := make([]types.Dimension, 0, len(dims))
	for k, v := range dims {
		out = append(out, types.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}
	return out
}
