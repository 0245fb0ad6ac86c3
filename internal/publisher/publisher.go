// Package publisher implements the master state feed: a process that logs
// into the master account only, polls its open positions, and publishes a
// compact JSON snapshot through a file and an optional loopback HTTP
// endpoint. It never issues orders and never switches accounts; the
// terminal-side agent consuming the feed owns idempotence.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mt5tools/copier/internal/broker"
	"github.com/mt5tools/copier/internal/config"
	"github.com/mt5tools/copier/internal/util"
)

// StateFilename is the snapshot file consumers watch for changes.
const StateFilename = "master_state.json"

// State is the published snapshot. LastUpdated is unix seconds with a
// fractional part.
type State struct {
	LastUpdated   float64         `json:"last_updated"`
	SymbolMapping []MappingState  `json:"symbol_mapping"`
	Positions     []PositionState `json:"positions"`
}

// MappingState is one symbol-mapping row as published.
type MappingState struct {
	MasterSymbol string  `json:"master_symbol"`
	SlaveSymbol  string  `json:"slave_symbol"`
	SlaveLot     float64 `json:"slave_lot"`
}

// PositionState is one open master position as published.
type PositionState struct {
	Ticket    uint64  `json:"ticket"`
	Symbol    string  `json:"symbol"`
	Type      int     `json:"type"`
	Volume    float64 `json:"volume"`
	PriceOpen float64 `json:"price_open"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Time      int64   `json:"time"`
	Comment   string  `json:"comment"`
}

// Publisher polls the master account and publishes snapshots. It is serial
// internally; the only cross-thread handoff is the atomically swapped
// snapshot pointer read by the HTTP server.
type Publisher struct {
	client  broker.Client
	account config.Account
	mapping []MappingState
	cfg     config.PublisherConfig
	logger  *logrus.Logger

	// lastBody memoises the serialised position list: the file is written
	// only when it differs byte-for-byte. The comparison excludes
	// last_updated, which would otherwise change every poll; an idle feed
	// must not burn disk.
	lastBody []byte

	snapshot atomic.Pointer[[]byte]
}

// New creates a publisher for the master account.
func New(
	client broker.Client,
	account config.Account,
	symbols *config.SymbolMap,
	cfg config.PublisherConfig,
	logger *logrus.Logger,
) *Publisher {
	mapping := make([]MappingState, 0, symbols.Len())
	for _, entry := range symbols.Entries() {
		lot, _ := entry.LotMultiplier.Float64()
		mapping = append(mapping, MappingState{
			MasterSymbol: entry.MasterSymbol,
			SlaveSymbol:  entry.SlaveSymbol,
			SlaveLot:     lot,
		})
	}
	return &Publisher{
		client:  client,
		account: account,
		mapping: mapping,
		cfg:     cfg,
		logger:  logger,
	}
}

// Connect initialises the terminal and logs into the master account.
// Failure here is fatal for the feed process.
func (p *Publisher) Connect() error {
	if err := p.client.Initialize(); err != nil {
		return fmt.Errorf("initializing terminal: %w", err)
	}
	if err := p.client.Login(p.account.Login, p.account.Password, p.account.Server); err != nil {
		return fmt.Errorf("login to master %d: %w", p.account.Login, err)
	}
	return nil
}

// Run polls until the context is cancelled. The first snapshot is taken
// immediately rather than one interval in.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.WithFields(logrus.Fields{
		"interval": p.cfg.PollInterval,
		"output":   filepath.Join(p.cfg.OutputDir, StateFilename),
	}).Info("publishing master state")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.poll(time.Now())
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			p.poll(now)
		}
	}
}

// Snapshot returns the latest serialised snapshot, or nil before the first
// successful poll. Safe to call from other goroutines.
func (p *Publisher) Snapshot() []byte {
	if payload := p.snapshot.Load(); payload != nil {
		return *payload
	}
	return nil
}

func (p *Publisher) poll(now time.Time) {
	positions, err := p.client.Positions()
	if err != nil {
		p.logger.WithError(err).Warn("failed to read master positions")
		return
	}

	state := p.buildState(positions, now)
	body, err := json.Marshal(state.Positions)
	if err != nil {
		p.logger.WithError(err).Error("failed to serialise positions")
		return
	}
	if bytes.Equal(body, p.lastBody) {
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		p.logger.WithError(err).Error("failed to serialise state")
		return
	}

	p.lastBody = body
	p.snapshot.Store(&payload)
	p.writeState(payload)
}

func (p *Publisher) buildState(positions []broker.Position, now time.Time) State {
	out := make([]PositionState, 0, len(positions))
	for _, pos := range positions {
		var opened int64
		if !pos.OpenTime.IsZero() {
			opened = pos.OpenTime.Unix()
		}
		out = append(out, PositionState{
			Ticket:    pos.Ticket,
			Symbol:    pos.Symbol,
			Type:      int(pos.Side),
			Volume:    util.RoundVolume(pos.Volume),
			PriceOpen: pos.PriceOpen,
			SL:        pos.SL,
			TP:        pos.TP,
			Time:      opened,
			Comment:   pos.Comment,
		})
	}
	return State{
		LastUpdated:   float64(now.UnixNano()) / float64(time.Second),
		SymbolMapping: p.mapping,
		Positions:     out,
	}
}

// writeState writes the snapshot atomically: a uniquely named temp file in
// the target directory, then a rename over the published name. Write
// failures are logged and the feed keeps running.
func (p *Publisher) writeState(payload []byte) {
	target := filepath.Join(p.cfg.OutputDir, StateFilename)
	tmp := filepath.Join(p.cfg.OutputDir, "."+StateFilename+"."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		p.logger.WithError(err).Warnf("failed to write %s", tmp)
		return
	}
	if err := os.Rename(tmp, target); err != nil {
		p.logger.WithError(err).Warnf("failed to publish %s", target)
		_ = os.Remove(tmp)
	}
}
