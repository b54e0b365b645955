// Package errclass defines the failure taxonomy of the notification pipeline
// and the classifier that maps a raised error onto it.
package errclass

// Severity ranks how loudly a failure should be surfaced.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category groups failures by their origin.
type Category string

const (
	CategoryValidation      Category = "validation"
	CategoryNetwork         Category = "network"
	CategoryAuthentication  Category = "authentication"
	CategoryRateLimit       Category = "rate_limit"
	CategoryConfiguration   Category = "configuration"
	CategoryExternalService Category = "external_service"
	CategoryInternal        Category = "internal"
	CategoryUnknown         Category = "unknown"
)

// Kind identifies the failure variant an error was constructed as at its
// point of origin.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNetwork
	KindRateLimit
	KindAuthentication
	KindConfiguration
	KindExternalService
	KindInternal
)

// Policy is the taxonomy entry for a Kind.
type Policy struct {
	Category   Category
	Severity   Severity
	Retryable  bool
	MaxRetries int
}

var policies = map[Kind]Policy{
	KindValidation:      {Category: CategoryValidation, Severity: SeverityLow, Retryable: false, MaxRetries: 0},
	KindNetwork:         {Category: CategoryNetwork, Severity: SeverityMedium, Retryable: true, MaxRetries: 5},
	KindRateLimit:       {Category: CategoryRateLimit, Severity: SeverityMedium, Retryable: true, MaxRetries: 3},
	KindAuthentication:  {Category: CategoryAuthentication, Severity: SeverityHigh, Retryable: false, MaxRetries: 0},
	KindConfiguration:   {Category: CategoryConfiguration, Severity: SeverityHigh, Retryable: false, MaxRetries: 0},
	KindExternalService: {Category: CategoryExternalService, Severity: SeverityMedium, Retryable: true, MaxRetries: 3},
	KindInternal:        {Category: CategoryInternal, Severity: SeverityHigh, Retryable: true, MaxRetries: 1},
	KindUnknown:         {Category: CategoryUnknown, Severity: SeverityMedium, Retryable: true, MaxRetries: 3},
}

// PolicyFor returns the taxonomy entry for k. Unrecognised kinds map to the
// Unknown entry.
func PolicyFor(k Kind) Policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return policies[KindUnknown]
}

func (k Kind) String() string {
	return string(PolicyFor(k).Category)
}
