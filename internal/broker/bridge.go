package broker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// defaultBridgeTimeout bounds a single bridge round-trip. Login against a
// busy trade server is the slowest call and can take several seconds.
const defaultBridgeTimeout = 15 * time.Second

// APIError is a non-2xx reply from the terminal bridge.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Status, e.Body)
}

// Bridge is a Client implementation backed by the local terminal bridge,
// a small HTTP sidecar that exposes the native terminal API on loopback.
type Bridge struct {
	client  *http.Client
	baseURL string
}

// Ensure Bridge implements Client at compile time.
var _ Client = (*Bridge)(nil)

// NewBridge creates a bridge client for the given base URL
// (e.g. http://127.0.0.1:6542).
func NewBridge(baseURL string) *Bridge {
	return NewBridgeWithClient(baseURL, nil)
}

// NewBridgeWithClient creates a bridge client with a custom HTTP client,
// used by tests and by callers that need different timeouts.
func NewBridgeWithClient(baseURL string, client *http.Client) *Bridge {
	if client == nil {
		client = &http.Client{Timeout: defaultBridgeTimeout}
	}
	return &Bridge{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// doRequest performs one bridge round-trip and decodes the JSON reply into
// out (skipped when out is nil). Non-2xx replies become *APIError.
func (b *Bridge) doRequest(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// Initialize starts the terminal behind the bridge.
func (b *Bridge) Initialize() error {
	return b.doRequest(http.MethodPost, "/initialize", nil, nil)
}

// Shutdown stops the terminal behind the bridge.
func (b *Bridge) Shutdown() error {
	return b.doRequest(http.MethodPost, "/shutdown", nil, nil)
}

type loginRequest struct {
	Login    uint64 `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// Login switches the terminal to the given account.
func (b *Bridge) Login(login uint64, password, server string) error {
	return b.doRequest(http.MethodPost, "/login", loginRequest{
		Login:    login,
		Password: password,
		Server:   server,
	}, nil)
}

// bridgePosition is the wire shape of a position; open time travels as a
// unix timestamp.
type bridgePosition struct {
	Position
	Time int64 `json:"time"`
}

func (p bridgePosition) toPosition() Position {
	pos := p.Position
	if p.Time > 0 {
		pos.OpenTime = time.Unix(p.Time, 0).UTC()
	}
	return pos
}

// Positions returns all open positions on the current account.
func (b *Bridge) Positions() ([]Position, error) {
	var raw []bridgePosition
	if err := b.doRequest(http.MethodGet, "/positions", nil, &raw); err != nil {
		return nil, err
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, p.toPosition())
	}
	return positions, nil
}

// PositionByTicket returns the open position with the given ticket.
func (b *Bridge) PositionByTicket(ticket uint64) (*Position, error) {
	var raw []bridgePosition
	path := "/positions?ticket=" + strconv.FormatUint(ticket, 10)
	if err := b.doRequest(http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrPositionNotFound
	}
	pos := raw[0].toPosition()
	return &pos, nil
}

// SymbolInfo returns per-symbol trading parameters.
func (b *Bridge) SymbolInfo(symbol string) (*SymbolInfo, error) {
	var info SymbolInfo
	path := "/symbols/" + url.PathEscape(symbol) + "/info"
	if err := b.doRequest(http.MethodGet, path, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SymbolTick returns the current bid/ask for a symbol.
func (b *Bridge) SymbolTick(symbol string) (*Tick, error) {
	var tick Tick
	path := "/symbols/" + url.PathEscape(symbol) + "/tick"
	if err := b.doRequest(http.MethodGet, path, nil, &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

type symbolSelectRequest struct {
	Enable bool `json:"enable"`
}

// SymbolSelect makes a symbol visible in the terminal.
func (b *Bridge) SymbolSelect(symbol string, enable bool) error {
	path := "/symbols/" + url.PathEscape(symbol) + "/select"
	return b.doRequest(http.MethodPost, path, symbolSelectRequest{Enable: enable}, nil)
}

// OrderSend submits a trade request. Rejections travel in the result
// retcode, not as errors.
func (b *Bridge) OrderSend(req *OrderRequest) (*OrderResult, error) {
	var result OrderResult
	if err := b.doRequest(http.MethodPost, "/order", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
