package fetch

import (
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ResilienceConfig holds optional failsafe-go policies applied around a
// SessionPool's transport round trips, in addition to the per-request
// timeout §4.5 always enforces. Both fields are nil (disabled) by default.
type ResilienceConfig struct {
	// RetryPolicy retries a failed round trip. If nil, retry is disabled.
	RetryPolicy retrypolicy.RetryPolicy[*http.Response]

	// CircuitBreaker opens after repeated failures to an origin, failing
	// fast instead of attempting further round trips. If nil, disabled.
	CircuitBreaker circuitbreaker.CircuitBreaker[*http.Response]
}

// RetryPolicyBuilder returns a pre-configured retry policy builder:
// retries network errors and 5xx responses up to 3 times with exponential
// backoff from 100ms to 10s. Callers may further customize before Build().
func RetryPolicyBuilder() retrypolicy.Builder[*http.Response] {
	return retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(r *http.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode >= 500)
		}).
		WithMaxRetries(3).
		WithBackoff(100*time.Millisecond, 10*time.Second)
}

// CircuitBreakerBuilder returns a pre-configured circuit breaker builder:
// opens after 5 consecutive network errors or 5xx responses, half-opens
// after 60s, and closes again after 2 consecutive successes.
func CircuitBreakerBuilder() circuitbreaker.Builder[*http.Response] {
	return circuitbreaker.NewBuilder[*http.Response]().
		HandleIf(func(r *http.Response, err error) bool {
			return err != nil || (r != nil && r.StatusCode >= 500)
		}).
		WithFailureThreshold(5).
		WithSuccessThreshold(2).
		WithDelay(60 * time.Second)
}
