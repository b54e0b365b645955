// Package metrics records pipeline counters, gauges, and timings through an
// injected Sink and derives the worker's health verdict from them.
package metrics

import (
	"sort"
	"strings"
	"time"
)

// Metric names emitted by the pipeline.
const (
	MessagesProcessed         = "messages_processed"
	MessagesSentToDLQ         = "messages_sent_to_dlq"
	DLQSendFailures           = "dlq_send_failures"
	EmailsSent                = "emails_sent"
	Retries                   = "retries"
	SQSOperations             = "sqs_operations"
	SQSMessagesReceived       = "sqs_messages_received"
	MessageProcessingDuration = "message_processing_duration"
)

// Values of the status label on MessagesProcessed.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusDropped = "dropped"
)

// Labels are the dimensions attached to one observation.
type Labels map[string]string

// Sink receives metric observations. Implementations must be safe for
// concurrent use.
type Sink interface {
	IncrementCounter(name string, labels Labels)
	SetGauge(name string, value float64, labels Labels)
	RecordTiming(name string, d time.Duration, labels Labels)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) IncrementCounter(string, Labels)            {}
func (Nop) SetGauge(string, float64, Labels)           {}
func (Nop) RecordTiming(string, time.Duration, Labels) {}

// Multi fans each observation out to every sink in order.
type Multi []Sink

func (m Multi) IncrementCounter(name string, labels Labels) {
	for _, s := range m {
		s.IncrementCounter(name, labels)
	}
}

func (m Multi) SetGauge(name string, value float64, labels Labels) {
	for _, s := range m {
		s.SetGauge(name, value, labels)
	}
}

func (m Multi) RecordTiming(name string, d time.Duration, labels Labels) {
	for _, s := range m {
		s.RecordTiming(name, d, labels)
	}
}

// key renders name and labels as a stable map key, e.g.
// messages_processed{status=success}.
func key(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}
