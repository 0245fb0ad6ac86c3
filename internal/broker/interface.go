// Package broker provides the terminal client used to observe and trade
// MT5 accounts. It defines the narrow capability interface the replication
// engine depends on, a REST implementation that talks to a local terminal
// bridge, and a circuit-breaker decorator for flaky bridges.
package broker

import "errors"

// ErrPositionNotFound is returned by PositionByTicket when the terminal no
// longer reports the requested position (closed or never existed).
var ErrPositionNotFound = errors.New("position not found")

// Client is the capability interface over the broker terminal.
//
// A Client owns exactly one terminal session; the currently logged-in
// account is whatever the last successful Login selected. Calls are
// synchronous and must never be issued concurrently.
type Client interface {
	// Initialize starts the terminal session. Called once per process.
	Initialize() error
	// Shutdown tears the terminal session down.
	Shutdown() error

	// Login switches the terminal to the given account.
	Login(login uint64, password, server string) error

	// Positions returns all open positions on the current account.
	Positions() ([]Position, error)
	// PositionByTicket returns the single open position with the given
	// ticket, or ErrPositionNotFound.
	PositionByTicket(ticket uint64) (*Position, error)

	// SymbolInfo returns per-symbol trading parameters.
	SymbolInfo(symbol string) (*SymbolInfo, error)
	// SymbolTick returns the current bid/ask for a symbol.
	SymbolTick(symbol string) (*Tick, error)
	// SymbolSelect makes a symbol visible in the terminal, a prerequisite
	// to querying its ticks or dealing in it.
	SymbolSelect(symbol string, enable bool) error

	// OrderSend submits a trade request and returns the server's reply.
	// A non-nil result with a non-DONE retcode is not an error; err is
	// reserved for transport failures.
	OrderSend(req *OrderRequest) (*OrderResult, error)
}
