package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantNil    bool
		wantKind   errclass.Kind
		wantPerm   bool
	}{
		{name: "200 returns nil", statusCode: 200, wantNil: true},
		{name: "202 returns nil", statusCode: 202, wantNil: true},
		{name: "400 is validation", statusCode: 400, wantKind: errclass.KindValidation, wantPerm: true},
		{name: "401 is authentication", statusCode: 401, wantKind: errclass.KindAuthentication, wantPerm: true},
		{name: "403 is authentication", statusCode: 403, wantKind: errclass.KindAuthentication, wantPerm: true},
		{name: "404 is validation", statusCode: 404, wantKind: errclass.KindValidation, wantPerm: true},
		{name: "422 is validation", statusCode: 422, wantKind: errclass.KindValidation, wantPerm: true},
		{name: "429 is rate limit", statusCode: 429, wantKind: errclass.KindRateLimit},
		{name: "500 is external service", statusCode: 500, wantKind: errclass.KindExternalService},
		{name: "503 is external service", statusCode: 503, wantKind: errclass.KindExternalService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := ClassifyHTTPError("sendgrid", tt.statusCode, "body")
			if tt.wantNil {
				if pe != nil {
					t.Fatalf("ClassifyHTTPError() = %v, want nil", pe)
				}
				return
			}
			if pe == nil {
				t.Fatal("ClassifyHTTPError() = nil, want error")
			}
			if pe.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", pe.Kind, tt.wantKind)
			}
			if got := IsPermanent(pe); got != tt.wantPerm {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.wantPerm)
			}
		})
	}
}

func TestProviderErrorIsClassified(t *testing.T) {
	err := fmt.Errorf("send welcome: %w", ClassifyHTTPError("sendgrid", 429, "too many requests"))

	c := errclass.NewClassifier().Classify(err, errclass.Context{})
	if c.Category != errclass.CategoryRateLimit || !c.Retryable || c.MaxRetries != 3 {
		t.Errorf("unexpected classification: %+v", c)
	}
}

func TestKindForSMTPCode(t *testing.T) {
	tests := []struct {
		code int
		want errclass.Kind
	}{
		{421, errclass.KindExternalService},
		{450, errclass.KindExternalService},
		{535, errclass.KindAuthentication},
		{550, errclass.KindValidation},
		{250, errclass.KindUnknown},
	}
	for _, tt := range tests {
		if got := kindForSMTPCode(tt.code); got != tt.want {
			t.Errorf("kindForSMTPCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestIsPermanent_NonProviderError(t *testing.T) {
	if IsPermanent(errors.New("boom")) {
		t.Error("IsPermanent() should be false for unknown errors")
	}
}
