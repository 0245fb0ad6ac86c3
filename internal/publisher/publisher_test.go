package publisher

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mt5tools/copier/internal/broker"
	"github.com/mt5tools/copier/internal/config"
)

// feedClient serves a scripted master account.
type feedClient struct {
	positions []broker.Position
	err       error
	logins    []uint64
}

func (c *feedClient) Initialize() error { return nil }
func (c *feedClient) Shutdown() error { return nil }
func (c *feedClient) Login(login uint64, _, _ string) error {
	c.logins = append(c.logins, login)
	return nil
}
func (c *feedClient) Positions() ([]broker.Position, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.positions, nil
}
func (c *feedClient) PositionByTicket(uint64) (*broker.Position, error) {
	return nil, broker.ErrPositionNotFound
}
func (c *feedClient) SymbolInfo(string) (*broker.SymbolInfo, error) { return nil, nil }
func (c *feedClient) SymbolTick(string) (*broker.Tick, error) { return nil, nil }
func (c *feedClient) SymbolSelect(string, bool) error         { return nil }
func (c *feedClient) OrderSend(*broker.OrderRequest) (*broker.OrderResult, error) {
	return nil, errors.New("feed is read-only")
}

var _ broker.Client = (*feedClient)(nil)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testMapping(t *testing.T) *config.SymbolMap {
	t.Helper()
	path := filepath.Join(t.TempDir(), "symbol_mapping.csv")
	content := "master_symbol,slave_symbol,slave_lot\nXAUUSD,GOLD,0.5\nEURUSD,EURUSD.m,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	sm, err := config.LoadSymbolMap(path)
	require.NoError(t, err)
	return sm
}

func newTestPublisher(t *testing.T, client *feedClient) (*Publisher, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.PublisherConfig{
		PollInterval: 200 * time.Millisecond,
		OutputDir:    dir,
	}
	acct := config.Account{Login: 111, Password: "p", Server: "s"}
	return New(client, acct, testMapping(t), cfg, quietLogger()), dir
}

func readState(t *testing.T, dir string) State {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, StateFilename))
	require.NoError(t, err)
	var state State
	require.NoError(t, json.Unmarshal(data, &state))
	return state
}

func TestPublisher_WritesSnapshot(t *testing.T) {
	opened := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	client := &feedClient{positions: []broker.Position{
		{
			Ticket: 101, Symbol: "XAUUSD", Side: broker.SideBuy,
			Volume: 0.2, PriceOpen: 2914.35, SL: 2900, TP: 2950,
			OpenTime: opened, Comment: "",
		},
		{
			Ticket: 102, Symbol: "EURUSD", Side: broker.SideSell,
			Volume: 1.0000000000000002, PriceOpen: 1.0854,
		},
	}}
	p, dir := newTestPublisher(t, client)

	now := time.Now()
	p.poll(now)

	state := readState(t, dir)
	assert.InDelta(t, float64(now.UnixNano())/1e9, state.LastUpdated, 0.001)

	require.Len(t, state.SymbolMapping, 2)
	assert.Equal(t, MappingState{MasterSymbol: "XAUUSD", SlaveSymbol: "GOLD", SlaveLot: 0.5}, state.SymbolMapping[0])

	require.Len(t, state.Positions, 2)
	first := state.Positions[0]
	assert.Equal(t, uint64(101), first.Ticket)
	assert.Equal(t, 0, first.Type)
	assert.Equal(t, opened.Unix(), first.Time)
	assert.Equal(t, 2914.35, first.PriceOpen)

	assert.Equal(t, 1.0, state.Positions[1].Volume, "volumes are rounded to lot precision")
	assert.Zero(t, state.Positions[1].Time, "missing open time publishes as 0")
}

func TestPublisher_MemoisesUnchangedSnapshots(t *testing.T) {
	client := &feedClient{positions: []broker.Position{
		{Ticket: 101, Symbol: "XAUUSD", Side: broker.SideBuy, Volume: 0.2, TP: 2950},
	}}
	p, dir := newTestPublisher(t, client)

	start := time.Unix(1741943213, 0)
	p.poll(start)
	target := filepath.Join(dir, StateFilename)
	first, err := os.ReadFile(target)
	require.NoError(t, err)

	// Repeated polls with identical positions must not rewrite the file,
	// even though the clock advances: the change comparison excludes
	// last_updated.
	for i := 1; i <= 5; i++ {
		p.poll(start.Add(time.Duration(i) * time.Second))
	}
	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, first, after, "unchanged positions must not be rewritten")

	// A real change (TP moved) produces a new file with a fresh timestamp.
	client.positions[0].TP = 2960
	p.poll(start.Add(10 * time.Second))
	changed := readState(t, dir)
	assert.Equal(t, 2960.0, changed.Positions[0].TP)
	assert.Equal(t, float64(start.Add(10*time.Second).Unix()), changed.LastUpdated)
}

func TestPublisher_PollErrorKeepsLastSnapshot(t *testing.T) {
	client := &feedClient{positions: []broker.Position{
		{Ticket: 101, Symbol: "XAUUSD", Side: broker.SideBuy, Volume: 0.2},
	}}
	p, dir := newTestPublisher(t, client)

	fixed := time.Unix(1741943213, 0)
	p.poll(fixed)
	before, err := os.ReadFile(filepath.Join(dir, StateFilename))
	require.NoError(t, err)

	client.err = errors.New("terminal disconnected")
	p.poll(fixed.Add(time.Second))

	after, err := os.ReadFile(filepath.Join(dir, StateFilename))
	require.NoError(t, err)
	assert.Equal(t, before, after, "a failed poll must not clobber the snapshot")
	assert.Equal(t, before, p.Snapshot())
}

func TestPublisher_SnapshotNilBeforeFirstPoll(t *testing.T) {
	p, _ := newTestPublisher(t, &feedClient{})
	assert.Nil(t, p.Snapshot())
}

func TestPublisher_NoStrayTempFiles(t *testing.T) {
	client := &feedClient{positions: []broker.Position{{Ticket: 1, Symbol: "XAUUSD", Volume: 0.1}}}
	p, dir := newTestPublisher(t, client)

	for i := 0; i < 3; i++ {
		client.positions[0].TP = float64(i)
		p.poll(time.Unix(1741943213, 0))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, StateFilename, entries[0].Name())
}
