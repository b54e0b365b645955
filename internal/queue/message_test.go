package queue

import (
	"testing"
	"time"

	"github.com/sungwon/notification-pipeline/internal/envelope"
)

func TestRecordAttributeSnapshot(t *testing.T) {
	rec := Record{Attributes: map[string]envelope.Attribute{
		"source":        {Type: "String", Value: "billing"},
		"correlationId": {Type: "String", Value: "corr-1"},
	}}

	got := rec.AttributeSnapshot()
	if len(got) != 2 || got["source"] != "billing" || got["correlationId"] != "corr-1" {
		t.Errorf("AttributeSnapshot() = %v", got)
	}
	if (Record{}).AttributeSnapshot() != nil {
		t.Error("AttributeSnapshot() on empty record should be nil")
	}
}

func TestReceiveCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 1},
		{"0", 1},
		{"abc", 1},
		{"1", 1},
		{"4", 4},
	}
	for _, tt := range tests {
		if got := receiveCount(tt.in); got != tt.want {
			t.Errorf("receiveCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSentAt(t *testing.T) {
	if !sentAt("").IsZero() {
		t.Error("sentAt(empty) should be zero")
	}
	if got := sentAt("1700000000000"); !got.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("sentAt() = %v", got)
	}
}
