package broker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerClient wraps a Client with circuit breaker functionality so
// that a flapping terminal bridge fails fast instead of stalling the
// replication loop on every call.
type CircuitBreakerClient struct {
	client  Client
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerClient implements Client at compile time.
var _ Client = (*CircuitBreakerClient)(nil)

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// execBreaker is a generic helper for circuit breaker wrapper methods.
func execBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	client Client,
	fn func(Client) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(client) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerClient creates a CircuitBreakerClient with defaults tuned
// for a sub-second polling loop: trip after sustained failures, stay open
// long enough for the bridge to recover a terminal reconnect.
func NewCircuitBreakerClient(client Client) *CircuitBreakerClient {
	return NewCircuitBreakerClientWithSettings(client, CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      10 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewCircuitBreakerClientWithSettings creates a CircuitBreakerClient with
// custom settings.
func NewCircuitBreakerClientWithSettings(client Client, settings CircuitBreakerSettings) *CircuitBreakerClient {
	gbSettings := gobreaker.Settings{
		Name:        "TerminalBridgeBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Initialize wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) Initialize() error {
	_, err := execBreaker(c.breaker, c.client, func(cl Client) (struct{}, error) {
		return struct{}{}, cl.Initialize()
	})
	return err
}

// Shutdown bypasses the breaker: teardown must always reach the bridge.
func (c *CircuitBreakerClient) Shutdown() error {
	return c.client.Shutdown()
}

// Login wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) Login(login uint64, password, server string) error {
	_, err := execBreaker(c.breaker, c.client, func(cl Client) (struct{}, error) {
		return struct{}{}, cl.Login(login, password, server)
	})
	return err
}

// Positions wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) Positions() ([]Position, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) ([]Position, error) {
		return cl.Positions()
	})
}

// PositionByTicket wraps the underlying call with the circuit breaker.
// A missing position is a normal outcome, not a bridge failure, so it is
// excluded from the breaker's failure counts.
func (c *CircuitBreakerClient) PositionByTicket(ticket uint64) (*Position, error) {
	pos, err := execBreaker(c.breaker, c.client, func(cl Client) (*Position, error) {
		p, err := cl.PositionByTicket(ticket)
		if errors.Is(err, ErrPositionNotFound) {
			return nil, nil
		}
		return p, err
	})
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	return pos, nil
}

// SymbolInfo wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) SymbolInfo(symbol string) (*SymbolInfo, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) (*SymbolInfo, error) {
		return cl.SymbolInfo(symbol)
	})
}

// SymbolTick wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) SymbolTick(symbol string) (*Tick, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) (*Tick, error) {
		return cl.SymbolTick(symbol)
	})
}

// SymbolSelect wraps the underlying call with the circuit breaker.
func (c *CircuitBreakerClient) SymbolSelect(symbol string, enable bool) error {
	_, err := execBreaker(c.breaker, c.client, func(cl Client) (struct{}, error) {
		return struct{}{}, cl.SymbolSelect(symbol, enable)
	})
	return err
}

// OrderSend wraps the underlying call with the circuit breaker. Broker
// rejections (non-DONE retcodes) are successful round-trips as far as the
// breaker is concerned.
func (c *CircuitBreakerClient) OrderSend(req *OrderRequest) (*OrderResult, error) {
	return execBreaker(c.breaker, c.client, func(cl Client) (*OrderResult, error) {
		return cl.OrderSend(req)
	})
}
