package handler

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/dispatch"
	"github.com/sungwon/notification-pipeline/internal/metrics"
	"github.com/sungwon/notification-pipeline/internal/notification"
)

func TestNewRegistry_CompleteTable(t *testing.T) {
	p := &mockProvider{}
	sink := metrics.NewCollector()
	r, err := NewRegistry(Deps{Provider: p, From: "noreply@example.com", Metrics: sink, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	d, err := dispatch.New(r, zerolog.Nop())
	if err != nil {
		t.Fatalf("dispatch.New() error = %v", err)
	}

	for _, tr := range notification.AllTransporters() {
		res := d.Dispatch(context.Background(), notification.Payload{
			UserID:           "u-1",
			NotificationType: notification.EventTrialEnd,
			TransporterType:  tr,
			AdditionalData:   map[string]any{"email": "u1@example.com"},
		})
		if !res.Success {
			t.Errorf("%s: Dispatch() failed: %v", tr, res.Error)
		}
	}

	if got := len(p.getSent()); got != 1 {
		t.Errorf("provider sent %d emails, want 1 (MAIL only)", got)
	}
}

func TestNewRegistry_RequiresProvider(t *testing.T) {
	if _, err := NewRegistry(Deps{Logger: zerolog.Nop()}); err == nil {
		t.Fatal("NewRegistry() expected error without provider")
	}
}

func TestPlaceholder(t *testing.T) {
	p := NewPlaceholder(notification.TransporterSMS, notification.EventWelcome, zerolog.Nop())
	res, err := p.Handle(context.Background(), notification.HandlerContext{UserID: "u-1"})
	if err != nil || !res.Success {
		t.Fatalf("Handle() = %+v, %v", res, err)
	}
	if res.Metadata["handler"] != "placeholder" {
		t.Errorf("Metadata = %v", res.Metadata)
	}
}
