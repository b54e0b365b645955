package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "notification"

// PrometheusSink records observations as Prometheus vectors registered on an
// injected registerer. Observations under names it does not know are dropped.
type PrometheusSink struct {
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	timings  map[string]*prometheus.HistogramVec
	labels   map[string][]string
}

// NewPrometheusSink registers the pipeline metrics on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	f := promauto.With(reg)
	s := &PrometheusSink{
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
		timings:  make(map[string]*prometheus.HistogramVec),
		labels:   make(map[string][]string),
	}

	counter := func(name, help string, labels ...string) {
		s.counters[name] = f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name + "_total",
			Help:      help,
		}, labels)
		s.labels[name] = labels
	}

	counter(MessagesProcessed, "Total number of queue messages processed by status", "status") // success, failed, dropped
	counter(MessagesSentToDLQ, "Total number of messages sent to the dead letter queue")
	counter(DLQSendFailures, "Total number of failed dead letter publishes")
	counter(EmailsSent, "Total number of emails sent", "event_type")
	counter(Retries, "Total number of local retry attempts")
	counter(SQSOperations, "Total number of SQS API calls", "operation", "status")

	s.gauges[SQSMessagesReceived] = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      SQSMessagesReceived,
		Help:      "Number of messages returned by the last receive call",
	}, nil)
	s.labels[SQSMessagesReceived] = nil

	s.timings[MessageProcessingDuration] = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      MessageProcessingDuration + "_seconds",
		Help:      "Duration of message processing stages",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})
	s.labels[MessageProcessingDuration] = []string{"stage"}

	return s
}

// IncrementCounter implements Sink.
func (s *PrometheusSink) IncrementCounter(name string, labels Labels) {
	if v, ok := s.counters[name]; ok {
		v.WithLabelValues(s.values(name, labels)...).Inc()
	}
}

// SetGauge implements Sink.
func (s *PrometheusSink) SetGauge(name string, value float64, labels Labels) {
	if v, ok := s.gauges[name]; ok {
		v.WithLabelValues(s.values(name, labels)...).Set(value)
	}
}

// RecordTiming implements Sink.
func (s *PrometheusSink) RecordTiming(name string, d time.Duration, labels Labels) {
	if v, ok := s.timings[name]; ok {
		v.WithLabelValues(s.values(name, labels)...).Observe(d.Seconds())
	}
}

// values orders labels by the vector's declared label names. Missing labels
// become empty strings and unknown labels are ignored.
func (s *PrometheusSink) values(name string, labels Labels) []string {
	names := s.labels[name]
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = labels[n]
	}
	return out
}
