package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"
)

// CloudWatchAPI abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// DefaultCloudWatchNamespace is used when no namespace is configured.
const DefaultCloudWatchNamespace = "NotificationPipeline"

var _ Sink = (*CloudWatchSink)(nil)

// CloudWatchSink publishes every observation with PutMetricData. Publish
// errors are logged and otherwise ignored.
type CloudWatchSink struct {
	client    CloudWatchAPI
	namespace string
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewCloudWatchSink creates a CloudWatchSink publishing under namespace.
func NewCloudWatchSink(client CloudWatchAPI, namespace string, logger zerolog.Logger) *CloudWatchSink {
	if namespace == "" {
		namespace = DefaultCloudWatchNamespace
	}
	return &CloudWatchSink{
		client:    client,
		namespace: namespace,
		timeout:   5 * time.Second,
		logger:    logger,
	}
}

// IncrementCounter implements Sink.
func (s *CloudWatchSink) IncrementCounter(name string, labels Labels) {
	s.put(name, 1, cwtypes.StandardUnitCount, labels)
}

// SetGauge implements Sink.
func (s *CloudWatchSink) SetGauge(name string, value float64, labels Labels) {
	s.put(name, value, cwtypes.StandardUnitCount, labels)
}

// RecordTiming implements Sink. Durations are recorded in milliseconds.
func (s *CloudWatchSink) RecordTiming(name string, d time.Duration, labels Labels) {
	s.put(name, float64(d.Milliseconds()), cwtypes.StandardUnitMilliseconds, labels)
}

func (s *CloudWatchSink) put(name string, value float64, unit cwtypes.StandardUnit, labels Labels) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(s.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(value),
				Unit:       unit,
				Timestamp:  aws.Time(time.Now()),
				Dimensions: dimensions(labels),
			},
		},
	}

	if _, err := s.client.PutMetricData(ctx, input); err != nil {
		s.logger.Error().Err(err).
			Str("metric", name).
			Float64("value", value).
			Msg("failed to put cloudwatch metric")
	}
}

func dimensions(labels Labels) []cwtypes.Dimension {
	if len(labels) == 0 {
		return nil
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	dims := make([]cwtypes.Dimension, 0, len(names))
	for _, k := range names {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(k),
			Value: aws.String(labels[k]),
		})
	}
	return dims
}
