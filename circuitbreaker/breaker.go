package circuitbreaker

import (
	"time"
)

// RecordFailure marks an endpoint as failed and potentially opens its circuit
func (hm *HealthManager) RecordFailure(endpoint string) {
	hm.healthMutex.Lock()
	defer hm.healthMutex.Unlock()

	health, exists := hm.healthMap[endpoint]
	if !exists {
		health = &EndpointHealth{URL: endpoint}
		hm.healthMap[endpoint] = health
	}

	health.FailureCount++
	health.TotalRequests++
	health.LastFailureTime = time.Now()

	// Open circuit once the failure threshold is reached
	if health.FailureCount >= hm.config.FailureThreshold {
		health.CircuitOpen = true

		// Calculate backoff time with exponential backoff capped at max
		failuresOverThreshold := health.FailureCount - hm.config.FailureThreshold + 1
		if failuresOverThreshold < 1 {
			failuresOverThreshold = 1
		}
		backoff := hm.config.BackoffDuration
		for i := 1; i < failuresOverThreshold && backoff < hm.config.MaxBackoffDuration; i++ {
			backoff *= 2
		}
		if backoff > hm.config.MaxBackoffDuration {
			backoff = hm.config.MaxBackoffDuration
		}

		now := time.Now()
		health.NextRetryTime = now.Add(backoff)

		hm.logWarn("circuit breaker opened for endpoint", map[string]interface{}{
			"endpoint":  endpoint,
			"failures":  health.FailureCount,
			"retryIn":   backoff.String(),
		})
	} else {
		hm.logInfo("endpoint failure recorded", map[string]interface{}{
			"endpoint":  endpoint,
			"failures":  health.FailureCount,
			"threshold": hm.config.FailureThreshold,
		})
	}
}

// RecordSuccess marks an endpoint as successful and potentially closes its circuit
func (hm *HealthManager) RecordSuccess(endpoint string) {
	hm.healthMutex.Lock()
	defer hm.healthMutex.Unlock()

	health, exists := hm.healthMap[endpoint]
	if !exists {
		health = &EndpointHealth{URL: endpoint}
		hm.healthMap[endpoint] = health
	}

	// Update success metrics
	health.SuccessCount++
	health.TotalRequests++
	health.LastSuccessTime = time.Now()

	// If circuit was open, close it and reset
	if health.CircuitOpen {
		health.CircuitOpen = false
		health.FailureCount = 0
		health.NextRetryTime = time.Time{}
		hm.logInfo("circuit breaker closed for endpoint", map[string]interface{}{"endpoint": endpoint})
	} else if health.FailureCount > 0 {
		// Reset failure count to zero on success
		health.FailureCount = 0
		hm.logInfo("endpoint recovered, failure count reset", map[string]interface{}{"endpoint": endpoint})
	}
}
