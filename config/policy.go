package config

import "time"

// ProtocolPolicy holds the core's dynamic behavior knobs, consumed (not
// parsed) by the pipeline runner and its stages.
type ProtocolPolicy struct {
	StreamConversionEnabled bool
	ValidationEnabled       bool
	MaxRequestSize          int
	ConcurrencyLimit        int
	RequestTimeout          time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
}

// DefaultProtocolPolicy returns conservative defaults suitable for
// development and tests.
func DefaultProtocolPolicy() ProtocolPolicy {
	return ProtocolPolicy{
		StreamConversionEnabled: true,
		ValidationEnabled:       true,
		MaxRequestSize:          10 << 20,
		ConcurrencyLimit:        8,
		RequestTimeout:          3 * time.Minute,
		MaxRetries:              2,
		RetryDelay:              500 * time.Millisecond,
	}
}
