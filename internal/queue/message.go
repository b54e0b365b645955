package queue

import (
	"strconv"
	"time"

	"github.com/sungwon/notification-pipeline/internal/envelope"
)

// Record is one message received from the source queue.
//
// ReceiveCount is the number of times the queue has delivered this message,
// including the current delivery. It starts at 1.
type Record struct {
	ID            string                        `json:"id"`
	ReceiptHandle string                        `json:"-"`
	Body          string                        `json:"body"`
	Attributes    map[string]envelope.Attribute `json:"attributes,omitempty"`
	ReceiveCount  int                           `json:"receiveCount"`
	SentAt        time.Time                     `json:"sentAt,omitzero"`
}

// AttributeSnapshot flattens the record's attributes into name/value pairs
// for logging and dead-lettering.
func (r Record) AttributeSnapshot() map[string]string {
	if len(r.Attributes) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.Attributes))
	for k, v := range r.Attributes {
		out[k] = v.Value
	}
	return out
}

// receiveCount parses an SQS ApproximateReceiveCount attribute, defaulting
// to 1 when it is missing or malformed.
func receiveCount(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// sentAt parses an SQS SentTimestamp attribute (epoch milliseconds).
func sentAt(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
