package notification

import (
	"errors"
	"strings"
	"testing"

	"github.com/sungwon/notification-pipeline/internal/errclass"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		raw       any
		wantErr   bool
		wantField string
	}{
		{
			name: "valid mail payload",
			raw: map[string]any{
				"userId":           "u-1",
				"notificationType": "WELCOME",
				"transporterType":  "MAIL",
			},
		},
		{
			name: "valid with additional data and unknown fields",
			raw: map[string]any{
				"userId":           "u-1",
				"notificationType": "MAGIC_LINK",
				"transporterType":  "MAIL",
				"additionalData":   map[string]any{"link": "https://x"},
				"extra":            true,
			},
		},
		{
			name: "long user id has no length bound",
			raw: map[string]any{
				"userId":           strings.Repeat("u", 300),
				"notificationType": "WELCOME",
				"transporterType":  "MAIL",
			},
		},
		{
			name: "missing user id",
			raw: map[string]any{
				"notificationType": "WELCOME",
				"transporterType":  "MAIL",
			},
			wantErr:   true,
			wantField: "userId",
		},
		{
			name: "whitespace user id",
			raw: map[string]any{
				"userId":           "   ",
				"notificationType": "WELCOME",
				"transporterType":  "MAIL",
			},
			wantErr:   true,
			wantField: "userId",
		},
		{
			name: "unknown event type",
			raw: map[string]any{
				"userId":           "u-1",
				"notificationType": "BIRTHDAY",
				"transporterType":  "MAIL",
			},
			wantErr:   true,
			wantField: "notificationType",
		},
		{
			name: "unknown transporter",
			raw: map[string]any{
				"userId":           "u-1",
				"notificationType": "WELCOME",
				"transporterType":  "PIGEON",
			},
			wantErr:   true,
			wantField: "transporterType",
		},
		{
			name: "numeric user id",
			raw: map[string]any{
				"userId":           42,
				"notificationType": "WELCOME",
				"transporterType":  "MAIL",
			},
			wantErr:   true,
			wantField: "userId",
		},
		{
			name: "additional data not an object",
			raw: map[string]any{
				"userId":           "u-1",
				"notificationType": "WELCOME",
				"transporterType":  "MAIL",
				"additionalData":   "nope",
			},
			wantErr:   true,
			wantField: "additionalData",
		},
		{
			name:    "nil payload",
			raw:     nil,
			wantErr: true,
		},
		{
			name:    "string payload",
			raw:     "hello",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Validate(tt.raw)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				if p.UserID != "u-1" {
					t.Errorf("UserID = %q, want u-1", p.UserID)
				}
				return
			}

			if err == nil {
				t.Fatal("Validate() expected error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if !errclass.IsKind(err, errclass.KindValidation) {
				t.Error("validation error should carry KindValidation")
			}
			if tt.wantField == "" {
				return
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Fields = %+v, want entry for %q", verr.Fields, tt.wantField)
			}
		})
	}
}

func TestPayloadDataIsCopy(t *testing.T) {
	p := Payload{AdditionalData: map[string]any{"k": "v"}}
	d := p.Data()
	d["k"] = "changed"
	if p.AdditionalData["k"] != "v" {
		t.Error("Data() returned the underlying map")
	}
	if (Payload{}).Data() != nil {
		t.Error("Data() on empty payload should be nil")
	}
}

func TestPayloadDataIsDeepCopy(t *testing.T) {
	p := Payload{AdditionalData: map[string]any{
		"plan":  map[string]any{"name": "pro", "limits": map[string]any{"seats": float64(5)}},
		"tags":  []any{"a", map[string]any{"k": "v"}},
		"count": float64(1),
	}}

	d := p.Data()
	d["plan"].(map[string]any)["name"] = "free"
	d["plan"].(map[string]any)["limits"].(map[string]any)["seats"] = float64(1)
	d["tags"].([]any)[0] = "z"
	d["tags"].([]any)[1].(map[string]any)["k"] = "changed"
	d["count"] = float64(2)

	plan := p.AdditionalData["plan"].(map[string]any)
	if plan["name"] != "pro" {
		t.Errorf("nested object mutated: %v", plan)
	}
	if plan["limits"].(map[string]any)["seats"] != float64(5) {
		t.Errorf("doubly nested object mutated: %v", plan["limits"])
	}
	tags := p.AdditionalData["tags"].([]any)
	if tags[0] != "a" || tags[1].(map[string]any)["k"] != "v" {
		t.Errorf("array mutated: %v", tags)
	}
	if p.AdditionalData["count"] != float64(1) {
		t.Errorf("scalar mutated: %v", p.AdditionalData["count"])
	}
}

func TestHandlerContextString(t *testing.T) {
	hc := HandlerContext{AdditionalData: map[string]any{"email": "a@b.c", "n": 3, "empty": ""}}
	if v, ok := hc.String("email"); !ok || v != "a@b.c" {
		t.Errorf("String(email) = %q, %v", v, ok)
	}
	if _, ok := hc.String("n"); ok {
		t.Error("String(n) should not report a non-string value")
	}
	if _, ok := hc.String("empty"); ok {
		t.Error("String(empty) should not report an empty string")
	}
}
