package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sungwon/notification-pipeline/internal/envelope"
	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/metrics"
)

type published struct {
	body  string
	attrs map[string]string
}

// mockPublisher records published messages.
type mockPublisher struct {
	mu    sync.Mutex
	sent  []published
	err   error
	panic any
}

func (p *mockPublisher) Publish(_ context.Context, body string, attrs map[string]string) (string, error) {
	if p.panic != nil {
		panic(p.panic)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, published{body: body, attrs: attrs})
	return "dlq-1", nil
}

func (p *mockPublisher) getSent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]published, len(p.sent))
	copy(out, p.sent)
	return out
}

// mockArchive is an in-memory msgstore.MessageStore.
type mockArchive struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func (a *mockArchive) Put(_ context.Context, id string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.data == nil {
		a.data = make(map[string][]byte)
	}
	a.data[id] = data
	return nil
}

func (a *mockArchive) Get(_ context.Context, id string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data[id], nil
}

func (a *mockArchive) Delete(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.data, id)
	return nil
}

func networkDeadLetter(body string) DeadLetter {
	c := errclass.NewClassifier().Classify(errors.New("Network timeout"), errclass.Context{
		MessageID: "msg-1",
		UserID:    "u-1",
		EventType: "SUBSCRIPTION_PAST_DUE",
	})
	c.Context.RetryCount = 5
	return DeadLetter{
		MessageID:  "msg-1",
		Body:       body,
		Attributes: map[string]string{"source": "billing"},
		Classified: c,
		RetryCount: 5,
	}
}

func decodeDLQ(t *testing.T, body string) DLQMessage {
	t.Helper()
	var msg DLQMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("dlq body is not valid JSON: %v", err)
	}
	return msg
}

func TestDeadLetterManager_Send(t *testing.T) {
	pub := &mockPublisher{}
	c := metrics.NewCollector()
	m := NewDeadLetterManager(pub, nil, c, testLogger())

	if !m.Send(context.Background(), networkDeadLetter(`{"payload":{}}`)) {
		t.Fatal("Send() = false, want true")
	}

	sent := pub.getSent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(sent))
	}

	wantAttrs := map[string]string{
		"messageId":         "msg-1",
		"originalMessageId": "msg-1",
		"failureReason":     "Network timeout",
		"severity":          "medium",
		"category":          "network",
		"retryCount":        "5",
	}
	for k, v := range wantAttrs {
		if sent[0].attrs[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, sent[0].attrs[k], v)
		}
	}

	msg := decodeDLQ(t, sent[0].body)
	if msg.OriginalMessageID != "msg-1" || msg.OriginalBody != `{"payload":{}}` {
		t.Errorf("unexpected original message: %+v", msg)
	}
	if msg.OriginalAttributes["source"] != "billing" {
		t.Errorf("original attributes = %v", msg.OriginalAttributes)
	}
	if msg.ErrorDetails.Category != "network" || !msg.ErrorDetails.Retryable || msg.ErrorDetails.MaxRetries != 5 {
		t.Errorf("unexpected error details: %+v", msg.ErrorDetails)
	}
	if msg.RetryCount != 5 || msg.Context.UserID != "u-1" {
		t.Errorf("unexpected retry count or context: %d %+v", msg.RetryCount, msg.Context)
	}
	if msg.FailedAt.IsZero() {
		t.Error("FailedAt should be set")
	}

	if got := c.Counter(metrics.MessagesSentToDLQ, nil); got != 1 {
		t.Errorf("messages_sent_to_dlq = %v, want 1", got)
	}
}

func TestDeadLetterManager_SendUnknownReason(t *testing.T) {
	pub := &mockPublisher{}
	m := NewDeadLetterManager(pub, nil, nil, testLogger())

	dl := DeadLetter{MessageID: "msg-2", Classified: errclass.Classified{Category: errclass.CategoryUnknown}}
	if !m.Send(context.Background(), dl) {
		t.Fatal("Send() = false, want true")
	}
	if got := pub.getSent()[0].attrs["failureReason"]; got != "unknown" {
		t.Errorf("failureReason = %q, want unknown", got)
	}
}

func TestDeadLetterManager_SendLongReasonTruncated(t *testing.T) {
	pub := &mockPublisher{}
	m := NewDeadLetterManager(pub, nil, nil, testLogger())

	dl := networkDeadLetter("{}")
	dl.Classified.Err = errors.New("timeout " + strings.Repeat("x", 1000))
	m.Send(context.Background(), dl)

	if got := len(pub.getSent()[0].attrs["failureReason"]); got != maxReasonAttribute {
		t.Errorf("failureReason length = %d, want %d", got, maxReasonAttribute)
	}
}

func TestDeadLetterManager_SendFailures(t *testing.T) {
	tests := []struct {
		name string
		pub  *mockPublisher
	}{
		{name: "publish error", pub: &mockPublisher{err: errors.New("sqs unavailable")}},
		{name: "publisher panics", pub: &mockPublisher{panic: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := metrics.NewCollector()
			m := NewDeadLetterManager(tt.pub, nil, c, testLogger())

			if m.Send(context.Background(), networkDeadLetter("{}")) {
				t.Fatal("Send() = true, want false")
			}
			if got := c.Counter(metrics.DLQSendFailures, nil); got != 1 {
				t.Errorf("dlq_send_failures = %v, want 1", got)
			}
			if got := c.Counter(metrics.MessagesSentToDLQ, nil); got != 0 {
				t.Errorf("messages_sent_to_dlq = %v, want 0", got)
			}
		})
	}
}

func TestDeadLetterManager_OversizedBodyArchived(t *testing.T) {
	pub := &mockPublisher{}
	archive := &mockArchive{}
	m := NewDeadLetterManager(pub, archive, nil, testLogger())

	body := strings.Repeat("a", MaxDLQMessageSize+1)
	if !m.Send(context.Background(), networkDeadLetter(body)) {
		t.Fatal("Send() = false, want true")
	}

	msg := decodeDLQ(t, pub.getSent()[0].body)
	if msg.OriginalBody != "" || msg.OriginalBodyTruncated {
		t.Errorf("archived body should be removed from the message: truncated=%v len=%d", msg.OriginalBodyTruncated, len(msg.OriginalBody))
	}
	if !strings.HasPrefix(msg.OriginalBodyRef, "dlq/msg-1-") {
		t.Fatalf("OriginalBodyRef = %q", msg.OriginalBodyRef)
	}
	stored, _ := archive.Get(context.Background(), msg.OriginalBodyRef)
	if string(stored) != body {
		t.Errorf("archived body length = %d, want %d", len(stored), len(body))
	}
}

func TestDeadLetterManager_OversizedBodyTruncated(t *testing.T) {
	tests := []struct {
		name    string
		archive *mockArchive
	}{
		{name: "no archive"},
		{name: "archive fails", archive: &mockArchive{err: errors.New("bucket missing")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{}
			var m *DeadLetterManager
			if tt.archive != nil {
				m = NewDeadLetterManager(pub, tt.archive, nil, testLogger())
			} else {
				m = NewDeadLetterManager(pub, nil, nil, testLogger())
			}

			body := strings.Repeat("b", MaxDLQMessageSize*2)
			if !m.Send(context.Background(), networkDeadLetter(body)) {
				t.Fatal("Send() = false, want true")
			}

			sent := pub.getSent()[0]
			if len(sent.body) > MaxDLQMessageSize {
				t.Errorf("published body is %d bytes, limit %d", len(sent.body), MaxDLQMessageSize)
			}
			msg := decodeDLQ(t, sent.body)
			if !msg.OriginalBodyTruncated {
				t.Error("OriginalBodyTruncated should be set")
			}
			if len(msg.OriginalBody) != envelope.MaxPreview {
				t.Errorf("truncated body length = %d, want %d", len(msg.OriginalBody), envelope.MaxPreview)
			}
		})
	}
}

func TestDeadLetterManager_IsHealthy(t *testing.T) {
	pub := &mockPublisher{}
	m := NewDeadLetterManager(pub, nil, nil, testLogger())

	if err := m.IsHealthy(context.Background()); err != nil {
		t.Fatalf("IsHealthy() error = %v", err)
	}
	sent := pub.getSent()
	if len(sent) != 1 || sent[0].attrs["failureReason"] != "health_check" {
		t.Fatalf("unexpected health check publish: %+v", sent)
	}
	if !strings.Contains(sent[0].body, `"type":"health_check"`) {
		t.Errorf("health check body = %s", sent[0].body)
	}

	pub.err = errors.New("sqs unavailable")
	if err := m.IsHealthy(context.Background()); err == nil {
		t.Error("IsHealthy() expected error when publish fails")
	}
}
