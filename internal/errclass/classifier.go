package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/aws/smithy-go"
)

// Context describes the message being processed when a failure occurred.
// It is created fresh per message and never persisted past its processing.
type Context struct {
	MessageID  string            `json:"messageId"`
	UserID     string            `json:"userId,omitempty"`
	EventType  string            `json:"eventType,omitempty"`
	RetryCount int               `json:"retryCount"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Classified is an error mapped onto the taxonomy. It is derived, never
// stored, and recomputed on each attempt.
type Classified struct {
	Err        error
	Severity   Severity
	Category   Category
	Retryable  bool
	MaxRetries int
	Context    Context
}

// Message returns the underlying error text, or "" when there is none.
func (c Classified) Message() string {
	if c.Err == nil {
		return ""
	}
	return c.Err.Error()
}

// Classifier maps raised errors onto the taxonomy. The zero value is ready
// to use.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

var (
	networkPatterns = []string{
		"timeout", "timed out", "connection refused", "connection reset",
		"econnrefused", "econnreset", "etimedout", "no such host",
		"broken pipe", "network",
	}
	validationPatterns = []string{
		"validation", "invalid payload", "invalid input", "malformed",
		"schema", "bad request", "unmarshal",
	}
	rateLimitPatterns = []string{
		"rate limit", "ratelimit", "throttl", "too many requests", "429",
	}
	authPatterns = []string{
		"unauthorized", "unauthenticated", "forbidden", "access denied",
		"invalid api key", "authentication", "401", "403",
	}
	sdkMarkers = []string{
		"operation error", "api error", "aws.simplequeueservice", "smithy",
	}
	queueServiceMarkers = []string{
		"sqs", "simplequeueservice", "receivemessage", "deletemessage", "sendmessage",
	}
)

// Classify applies the ordered rules; the first match wins. Errors tagged at
// their origin short-circuit the string heuristics, which remain only for
// SDK and library errors whose types cannot be controlled.
func (c *Classifier) Classify(err error, ectx Context) Classified {
	if ectx.Timestamp.IsZero() {
		ectx.Timestamp = time.Now()
	}
	if err == nil {
		return Classified{Context: ectx, Severity: SeverityLow, Category: CategoryUnknown}
	}

	if kind, ok := KindOf(err); ok {
		return fromPolicy(err, PolicyFor(kind), ectx)
	}

	if errors.Is(err, context.Canceled) {
		return Classified{
			Err: err, Severity: SeverityHigh, Category: CategoryInternal,
			Retryable: false, MaxRetries: 0, Context: ectx,
		}
	}

	name := strings.ToLower(fmt.Sprintf("%T %s", err, err.Error()))

	if sdk, queue := sdkError(err, name); sdk {
		if queue {
			return Classified{
				Err: err, Severity: SeverityHigh, Category: CategoryExternalService,
				Retryable: true, MaxRetries: 5, Context: ectx,
			}
		}
		return Classified{
			Err: err, Severity: SeverityMedium, Category: CategoryExternalService,
			Retryable: true, MaxRetries: 3, Context: ectx,
		}
	}

	if isNetwork(err, name) {
		return fromPolicy(err, PolicyFor(KindNetwork), ectx)
	}
	if containsAny(name, validationPatterns) {
		return fromPolicy(err, PolicyFor(KindValidation), ectx)
	}
	if containsAny(name, rateLimitPatterns) {
		return fromPolicy(err, PolicyFor(KindRateLimit), ectx)
	}
	if containsAny(name, authPatterns) {
		return fromPolicy(err, PolicyFor(KindAuthentication), ectx)
	}
	return fromPolicy(err, PolicyFor(KindUnknown), ectx)
}

func fromPolicy(err error, p Policy, ectx Context) Classified {
	return Classified{
		Err:        err,
		Severity:   p.Severity,
		Category:   p.Category,
		Retryable:  p.Retryable,
		MaxRetries: p.MaxRetries,
		Context:    ectx,
	}
}

// sdkError reports whether err came out of the AWS SDK and, if so, whether it
// came from the queue service.
func sdkError(err error, name string) (sdk bool, queue bool) {
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return true, strings.EqualFold(opErr.ServiceID, "SQS")
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := strings.ToLower(apiErr.ErrorCode())
		return true, strings.Contains(code, "simplequeueservice") || strings.Contains(code, "sqs")
	}
	if containsAny(name, sdkMarkers) {
		return true, containsAny(name, queueServiceMarkers)
	}
	return false, false
}

func isNetwork(err error, name string) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return containsAny(name, networkPatterns)
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
