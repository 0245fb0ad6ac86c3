package broker

import (
	"fmt"
	"time"
)

// Side is the direction of a position or market order.
// Values match the MT5 ORDER_TYPE_BUY/ORDER_TYPE_SELL wire encoding.
type Side int

const (
	// SideBuy is a long position or buy order.
	SideBuy Side = 0
	// SideSell is a short position or sell order.
	SideSell Side = 1
)

// String returns the audit-log spelling of the side.
func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// FillingMode is the broker's partial-fill policy for a market order.
// Values match the MT5 ORDER_FILLING_* wire encoding.
type FillingMode int

const (
	// FillingFOK fills the full volume or rejects the order.
	FillingFOK FillingMode = 0
	// FillingIOC fills what it can immediately and cancels the rest.
	FillingIOC FillingMode = 1
	// FillingReturn accepts a partial fill and leaves the remainder working.
	FillingReturn FillingMode = 2
)

// String returns the audit-log spelling of the filling mode.
func (m FillingMode) String() string {
	switch m {
	case FillingFOK:
		return "FOK"
	case FillingIOC:
		return "IOC"
	case FillingReturn:
		return "RETURN"
	default:
		return fmt.Sprintf("FILLING(%d)", int(m))
	}
}

// ParseFillingMode converts an audit-log spelling back to a FillingMode.
func ParseFillingMode(s string) (FillingMode, error) {
	switch s {
	case "FOK":
		return FillingFOK, nil
	case "IOC":
		return FillingIOC, nil
	case "RETURN":
		return FillingReturn, nil
	default:
		return 0, fmt.Errorf("unknown filling mode %q", s)
	}
}

// RetCode is the broker's numeric result code for order_send.
type RetCode int

// Trade server return codes (MT5 TRADE_RETCODE_* values).
const (
	RetDone        RetCode = 10009
	RetInvalidFill RetCode = 10030
)

// Action selects the trade operation carried by an OrderRequest.
type Action int

const (
	// ActionDeal is an immediate market deal (open or close).
	ActionDeal Action = 1
	// ActionSLTP modifies the stop-loss/take-profit of an open position.
	ActionSLTP Action = 6
)

// TimeMode is the order expiration policy.
type TimeMode int

// TimeGTC keeps the order working until explicitly cancelled.
const TimeGTC TimeMode = 0

// Position is one open market exposure as reported by the terminal.
// Ticket is unique within one account and stable for the position's lifetime.
// SL/TP of zero mean "unset".
type Position struct {
	Ticket    uint64    `json:"ticket"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"type"`
	Volume    float64   `json:"volume"`
	PriceOpen float64   `json:"price_open"`
	SL        float64   `json:"sl"`
	TP        float64   `json:"tp"`
	OpenTime  time.Time `json:"-"`
	Comment   string    `json:"comment"`
}

// Tick is the current top-of-book quote for a symbol.
type Tick struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// SymbolInfo carries the per-symbol parameters the copier consults.
type SymbolInfo struct {
	FillingMode FillingMode `json:"filling_mode"`
	Digits      int         `json:"digits"`
	VolumeMin   float64     `json:"volume_min"`
}

// OrderRequest is a trade request submitted through OrderSend.
// For deals that close an existing position, Position carries the ticket
// being closed; for SL/TP modifications only Position, SL and TP are read.
type OrderRequest struct {
	Action      Action      `json:"action"`
	Symbol      string      `json:"symbol,omitempty"`
	Volume      float64     `json:"volume,omitempty"`
	Side        Side        `json:"type"`
	Price       float64     `json:"price,omitempty"`
	SL          float64     `json:"sl"`
	TP          float64     `json:"tp"`
	Deviation   int         `json:"deviation,omitempty"`
	Magic       int         `json:"magic,omitempty"`
	Comment     string      `json:"comment,omitempty"`
	Position    uint64      `json:"position,omitempty"`
	TypeTime    TimeMode    `json:"type_time"`
	TypeFilling FillingMode `json:"type_filling"`
}

// OrderResult is the trade server's reply to an OrderRequest.
type OrderResult struct {
	RetCode RetCode `json:"retcode"`
	Order   uint64  `json:"order"`
	Comment string  `json:"comment"`
}

// Done reports whether the request was executed successfully.
func (r *OrderResult) Done() bool { return r.RetCode == RetDone }
