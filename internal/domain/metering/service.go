package metering

import "fmt"

// Service identifies a metered platform service
type Service string

const (
	// ServiceSignature tracks electronic signature requests
	ServiceSignature Service = "signature"

	// ServiceSMS tracks outbound SMS messages
	ServiceSMS Service = "sms"

	// ServiceEmail tracks outbound transactional emails
	ServiceEmail Service = "email"

	// ServiceStorage tracks document storage consumption in bytes
	ServiceStorage Service = "storage"

	// ServiceAI tracks AI assistant token consumption
	ServiceAI Service = "ai"
)

// String returns the string representation of the service
func (s Service) String() string {
	return string(s)
}

// IsValid returns true if the service is a known metered service
func (s Service) IsValid() bool {
	switch s {
	case ServiceSignature, ServiceSMS, ServiceEmail, ServiceStorage, ServiceAI:
		return true
	}
	return false
}

// MetricKind returns how values of this service accumulate
func (s Service) MetricKind() MetricKind {
	switch s {
	case ServiceStorage, ServiceAI:
		return MetricContinuous
	default:
		return MetricDiscrete
	}
}

// Unit returns the measurement unit for this service
func (s Service) Unit() Unit {
	switch s {
	case ServiceStorage:
		return UnitBytes
	case ServiceAI:
		return UnitTokens
	default:
		return UnitCount
	}
}

// DisplayName returns a human-readable name for the service
func (s Service) DisplayName() string {
	switch s {
	case ServiceSignature:
		return "Electronic Signatures"
	case ServiceSMS:
		return "SMS Messages"
	case ServiceEmail:
		return "Emails"
	case ServiceStorage:
		return "Document Storage"
	case ServiceAI:
		return "AI Tokens"
	default:
		return string(s)
	}
}

// AllServices returns all metered services
func AllServices() []Service {
	return []Service{
		ServiceSignature,
		ServiceSMS,
		ServiceEmail,
		ServiceStorage,
		ServiceAI,
	}
}

// ParseService parses a string into a Service
func ParseService(s string) (Service, error) {
	svc := Service(s)
	if !svc.IsValid() {
		return "", fmt.Errorf("invalid service: %s", s)
	}
	return svc, nil
}

// MetricKind distinguishes event-count metrics from quantity metrics
type MetricKind string

const (
	// MetricDiscrete counts events; each log entry carries quantity 1
	MetricDiscrete MetricKind = "DISCRETE"

	// MetricContinuous sums quantities (bytes, tokens) across log entries
	MetricContinuous MetricKind = "CONTINUOUS"
)

// String returns the string representation of the metric kind
func (k MetricKind) String() string {
	return string(k)
}

// Unit represents the unit of measurement for a metered service
type Unit string

const (
	// UnitCount represents a simple event count
	UnitCount Unit = "count"

	// UnitBytes represents storage in bytes
	UnitBytes Unit = "bytes"

	// UnitTokens represents AI tokens
	UnitTokens Unit = "tokens"
)

// String returns the string representation of the unit
func (u Unit) String() string {
	return string(u)
}

// FormatValue formats a value with the appropriate unit suffix
func (u Unit) FormatValue(value int64) string {
	switch u {
	case UnitBytes:
		return formatBytes(value)
	case UnitTokens:
		return fmt.Sprintf("%d tokens", value)
	default:
		return fmt.Sprintf("%d", value)
	}
}

// formatBytes formats bytes into human-readable form
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
