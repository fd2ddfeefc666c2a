package circuitbreaker

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	consecutiveFailures = 5
	openTimeout         = 10 * time.Second
	countInterval       = time.Minute
)

// New returns a breaker that opens after consecutive failures and probes with a
// single request once the open timeout elapses.
func New[T any](name string, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    countInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
