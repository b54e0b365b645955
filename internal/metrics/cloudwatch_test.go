package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"
)

type mockCloudWatch struct {
	mu     sync.Mutex
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func (m *mockCloudWatch) getInputs() []*cloudwatch.PutMetricDataInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs
}

func TestCloudWatchSink(t *testing.T) {
	client := &mockCloudWatch{}
	s := NewCloudWatchSink(client, "", zerolog.Nop())

	s.IncrementCounter(MessagesProcessed, Labels{"status": StatusSuccess})
	s.SetGauge(SQSMessagesReceived, 3, nil)
	s.RecordTiming(MessageProcessingDuration, 1500*time.Millisecond, Labels{"stage": "total"})

	inputs := client.getInputs()
	if len(inputs) != 3 {
		t.Fatalf("PutMetricData calls = %d, want 3", len(inputs))
	}
	if got := aws.ToString(inputs[0].Namespace); got != DefaultCloudWatchNamespace {
		t.Errorf("Namespace = %q, want %q", got, DefaultCloudWatchNamespace)
	}

	counter := inputs[0].MetricData[0]
	if aws.ToString(counter.MetricName) != MessagesProcessed || aws.ToFloat64(counter.Value) != 1 {
		t.Errorf("counter datum = %s %v", aws.ToString(counter.MetricName), aws.ToFloat64(counter.Value))
	}
	if len(counter.Dimensions) != 1 || aws.ToString(counter.Dimensions[0].Name) != "status" {
		t.Errorf("counter dimensions = %+v", counter.Dimensions)
	}

	timing := inputs[2].MetricData[0]
	if timing.Unit != cwtypes.StandardUnitMilliseconds || aws.ToFloat64(timing.Value) != 1500 {
		t.Errorf("timing datum = %v %v", timing.Unit, aws.ToFloat64(timing.Value))
	}
}

func TestCloudWatchSinkSwallowsErrors(t *testing.T) {
	client := &mockCloudWatch{err: errors.New("throttled")}
	s := NewCloudWatchSink(client, "Custom", zerolog.Nop())

	s.IncrementCounter(DLQSendFailures, nil)

	if got := aws.ToString(client.getInputs()[0].Namespace); got != "Custom" {
		t.Errorf("Namespace = %q, want Custom", got)
	}
}
