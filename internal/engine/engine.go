// Package engine implements the replication engine: a single-threaded
// polling loop that diffs master-account snapshots into ordered open,
// SL/TP-sync and close actions against the slave account.
//
// The loop only switches the terminal session to the slave when a batch has
// work, applies the batch Opens -> Mods -> Closes in ascending ticket
// order, then switches back to the master. Account switching is the
// expensive operation at the broker, so this batching policy is what keeps
// end-to-end latency inside one poll interval.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/mt5tools/copier/internal/audit"
	"github.com/mt5tools/copier/internal/broker"
	"github.com/mt5tools/copier/internal/config"
	"github.com/mt5tools/copier/internal/models"
	"github.com/mt5tools/copier/internal/session"
	"github.com/mt5tools/copier/internal/util"
)

// discoveryOrder is the fixed sequence tried when no filling mode is cached
// for a symbol. IOC first: it is the most common mode and carries the
// smallest slippage envelope on market execution.
var discoveryOrder = [...]broker.FillingMode{
	broker.FillingIOC,
	broker.FillingFOK,
	broker.FillingReturn,
}

// Engine mirrors open positions from the master account onto the slave
// account. All mutable replication state lives on the Engine value; there
// are no process-wide singletons.
type Engine struct {
	cfg     config.EngineConfig
	creds   *config.Credentials
	symbols *config.SymbolMap
	session *session.Manager
	audit   *audit.Writer
	logger  *log.Logger

	tickets *TicketMap
	filling *FillingCache
	states  *models.Tracker

	// ignored holds master tickets that were already open at startup.
	// They are never mirrored. Immutable after recordExistingTrades.
	ignored map[uint64]struct{}

	// unmappedLogged suppresses repeat skip logs per master symbol.
	unmappedLogged map[string]struct{}
}

// New creates a replication engine. The session manager must wrap the same
// terminal the credentials refer to.
func New(
	cfg config.EngineConfig,
	creds *config.Credentials,
	symbols *config.SymbolMap,
	sess *session.Manager,
	auditLog *audit.Writer,
	logger *log.Logger,
) *Engine {
	return &Engine{
		cfg:            cfg,
		creds:          creds,
		symbols:        symbols,
		session:        sess,
		audit:          auditLog,
		logger:         logger,
		tickets:        NewTicketMap(),
		filling:        NewFillingCache(),
		states:         models.NewTracker(),
		ignored:        make(map[uint64]struct{}),
		unmappedLogged: make(map[string]struct{}),
	}
}

// Run validates both accounts, records pre-existing master positions, and
// enters the polling loop until the context is cancelled. Initialisation
// and first-login failures are fatal and returned; everything inside the
// steady-state loop is handled by skipping to the next poll.
func (e *Engine) Run(ctx context.Context) error {
	// Log into slave first, then master, so both credentials are
	// validated up front and the session ends parked on the master.
	if err := e.session.SwitchTo(e.creds.Slave); err != nil {
		return fmt.Errorf("validating slave account: %w", err)
	}
	if err := e.session.SwitchTo(e.creds.Master); err != nil {
		return fmt.Errorf("validating master account: %w", err)
	}

	if err := e.recordExistingTrades(); err != nil {
		return err
	}

	e.logger.Printf("Monitoring for new trades, modifications, and closures (poll interval %s)", e.cfg.PollInterval)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runCycle()
		}
	}
}

// recordExistingTrades pins every master position open at startup to the
// ignored set. Pre-existing positions are not the engine's responsibility.
func (e *Engine) recordExistingTrades() error {
	positions, err := e.session.Client().Positions()
	if err != nil {
		return fmt.Errorf("reading existing master positions: %w", err)
	}
	for _, p := range positions {
		e.ignored[p.Ticket] = struct{}{}
		if err := e.states.MarkPreExisting(p.Ticket); err != nil {
			return err
		}
	}
	e.logger.Printf("Ignoring %d existing trades", len(e.ignored))
	return nil
}

// modification pairs a master position with the slave ticket whose SL/TP
// must converge to it.
type modification struct {
	master broker.Position
	slave  uint64
}

// batch is the set of replication actions derived from one snapshot.
type batch struct {
	opens  []broker.Position
	mods   []modification
	closes []uint64
}

func (b *batch) empty() bool {
	return len(b.opens) == 0 && len(b.mods) == 0 && len(b.closes) == 0
}

// deriveBatch turns a master snapshot into opens, SL/TP syncs and closes.
// All three slices come out in ascending master-ticket order so behaviour
// is deterministic across runs.
func (e *Engine) deriveBatch(master []broker.Position) batch {
	sorted := make([]broker.Position, len(master))
	copy(sorted, master)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ticket < sorted[j].Ticket })

	var b batch
	present := make(map[uint64]struct{}, len(sorted))
	for _, p := range sorted {
		present[p.Ticket] = struct{}{}
		if _, ok := e.ignored[p.Ticket]; ok {
			continue
		}
		entry, mirrored := e.tickets.Lookup(p.Ticket)
		if !mirrored {
			b.opens = append(b.opens, p)
			continue
		}
		if p.SL != entry.SL || p.TP != entry.TP {
			b.mods = append(b.mods, modification{master: p, slave: entry.SlaveTicket})
		}
	}

	for _, t := range e.tickets.MasterTickets() {
		if _, open := present[t]; !open {
			b.closes = append(b.closes, t)
		}
	}
	return b
}

// runCycle performs one poll iteration: snapshot the master, derive the
// batch, and, only if there is work, switch to the slave, dispatch, and
// switch back. Errors never escape the cycle; the next poll re-derives
// whatever was not applied.
func (e *Engine) runCycle() {
	if err := e.session.SwitchTo(e.creds.Master); err != nil {
		e.logger.Printf("Failed to switch to master account: %v", err)
		return
	}

	master, err := e.session.Client().Positions()
	if err != nil {
		e.logger.Printf("Failed to read master positions: %v", err)
		return
	}

	b := e.deriveBatch(master)
	if b.empty() {
		return
	}

	for _, p := range b.opens {
		e.transition(p.Ticket, models.StatePendingOpen, models.ConditionBatchDerived)
	}
	for _, t := range b.closes {
		e.transition(t, models.StatePendingClose, models.ConditionCloseDerived)
	}

	if err := e.session.SwitchTo(e.creds.Slave); err != nil {
		e.logger.Printf("Failed to switch to slave account, skipping batch: %v", err)
		for _, p := range b.opens {
			e.transition(p.Ticket, models.StateUnseen, models.ConditionBatchSkipped)
		}
		for _, t := range b.closes {
			e.transition(t, models.StateMirrored, models.ConditionBatchSkipped)
		}
		return
	}

	e.dispatchOpens(b.opens)
	e.dispatchMods(b.mods)
	e.dispatchCloses(b.closes)

	if err := e.session.SwitchTo(e.creds.Master); err != nil {
		e.logger.Printf("Failed to switch back to master account: %v", err)
	}
}

// dispatchOpens mirrors each new master position onto the slave account.
// The session must be on the slave.
func (e *Engine) dispatchOpens(opens []broker.Position) {
	client := e.session.Client()

	for _, p := range opens {
		entry, ok := e.symbols.Lookup(p.Symbol)
		if !ok {
			if _, logged := e.unmappedLogged[p.Symbol]; !logged {
				e.logger.Printf("Skipping %s (not in symbol mapping)", p.Symbol)
				e.unmappedLogged[p.Symbol] = struct{}{}
			}
			e.transition(p.Ticket, models.StateUnseen, models.ConditionOrderFailed)
			continue
		}

		volume := util.SlaveVolume(p.Volume, entry.LotMultiplier)

		if err := client.SymbolSelect(entry.SlaveSymbol, true); err != nil {
			e.logger.Printf("Failed to select %s on slave: %v", entry.SlaveSymbol, err)
			e.transition(p.Ticket, models.StateUnseen, models.ConditionOrderFailed)
			continue
		}

		tick, err := client.SymbolTick(entry.SlaveSymbol)
		if err != nil {
			e.logger.Printf("Failed to read tick for %s: %v", entry.SlaveSymbol, err)
			e.transition(p.Ticket, models.StateUnseen, models.ConditionOrderFailed)
			continue
		}
		price := tick.Bid
		if p.Side == broker.SideSell {
			price = tick.Ask
		}

		req := &broker.OrderRequest{
			Action:    broker.ActionDeal,
			Symbol:    entry.SlaveSymbol,
			Volume:    volume,
			Side:      p.Side,
			Price:     price,
			SL:        p.SL,
			TP:        p.TP,
			Deviation: e.cfg.OpenDeviation,
			Magic:     e.cfg.Magic,
			Comment:   e.cfg.OpenComment,
			TypeTime:  broker.TimeGTC,
		}

		result, mode, latencyMS, err := e.sendWithFilling(req, entry.SlaveSymbol)
		if err != nil {
			e.logger.Printf("Failed to copy %s -> %s: %v", p.Symbol, entry.SlaveSymbol, err)
			e.transition(p.Ticket, models.StateUnseen, models.ConditionOrderFailed)
			continue
		}
		if result == nil || !result.Done() {
			e.logger.Printf("Failed to copy %s -> %s (master lot %v, slave lot %v): retcode %d, comment %q",
				p.Symbol, entry.SlaveSymbol, p.Volume, volume, resultRetcode(result), resultComment(result))
			e.transition(p.Ticket, models.StateUnseen, models.ConditionOrderFailed)
			continue
		}

		e.tickets.Add(p.Ticket, result.Order, p.SL, p.TP)
		e.transition(p.Ticket, models.StateMirrored, models.ConditionOrderDone)
		e.audit.Open(audit.OpenRecord{
			Time:         time.Now(),
			MasterTicket: p.Ticket,
			SlaveTicket:  result.Order,
			MasterSymbol: p.Symbol,
			SlaveSymbol:  entry.SlaveSymbol,
			MasterLot:    p.Volume,
			SlaveLot:     volume,
			Side:         p.Side,
			Price:        price,
			SL:           p.SL,
			TP:           p.TP,
			Filling:      mode,
			LatencyMS:    latencyMS,
		})
		e.logger.Printf("Copied %s -> %s (master lot %v, slave lot %v) using filling mode %s in %.1f ms",
			p.Symbol, entry.SlaveSymbol, p.Volume, volume, mode, latencyMS)
	}
}

// dispatchMods pushes changed SL/TP pairs onto the mirrored slave
// positions. The session must be on the slave. Failures are logged only;
// the next poll re-derives the diff.
func (e *Engine) dispatchMods(mods []modification) {
	client := e.session.Client()

	for _, m := range mods {
		slavePos, err := client.PositionByTicket(m.slave)
		if errors.Is(err, broker.ErrPositionNotFound) {
			// Close pass (or next poll) deals with the vanished mirror.
			continue
		}
		if err != nil {
			e.logger.Printf("Failed to read slave position %d: %v", m.slave, err)
			continue
		}

		if slavePos.SL == m.master.SL && slavePos.TP == m.master.TP {
			// Already converged (e.g. the open carried the new values);
			// refresh the applied record so the diff quiesces.
			e.tickets.SetSLTP(m.master.Ticket, m.master.SL, m.master.TP)
			continue
		}

		result, err := client.OrderSend(&broker.OrderRequest{
			Action:   broker.ActionSLTP,
			Position: m.slave,
			SL:       m.master.SL,
			TP:       m.master.TP,
		})
		if err != nil {
			e.logger.Printf("Failed to sync SL/TP for slave ticket %d: %v", m.slave, err)
			continue
		}
		if !result.Done() {
			e.logger.Printf("SL/TP sync rejected for slave ticket %d: retcode %d, comment %q",
				m.slave, result.RetCode, result.Comment)
			continue
		}

		e.tickets.SetSLTP(m.master.Ticket, m.master.SL, m.master.TP)
		e.transition(m.master.Ticket, models.StateMirrored, models.ConditionSLTPSynced)
		e.audit.Modify(audit.ModifyRecord{
			Time:         time.Now(),
			MasterTicket: m.master.Ticket,
			SlaveTicket:  m.slave,
			SL:           m.master.SL,
			TP:           m.master.TP,
		})
		e.logger.Printf("Updated SL/TP for master ticket %d -> slave ticket %d", m.master.Ticket, m.slave)
	}
}

// dispatchCloses closes the slave mirror of each master ticket that left
// the snapshot. The session must be on the slave.
func (e *Engine) dispatchCloses(closes []uint64) {
	client := e.session.Client()

	for _, masterTicket := range closes {
		mapping, ok := e.tickets.Lookup(masterTicket)
		if !ok {
			continue
		}

		pos, err := client.PositionByTicket(mapping.SlaveTicket)
		if errors.Is(err, broker.ErrPositionNotFound) {
			// Externally closed; nothing left to mirror.
			e.tickets.Remove(masterTicket)
			e.transition(masterTicket, models.StateClosed, models.ConditionSlaveMissing)
			continue
		}
		if err != nil {
			e.logger.Printf("Failed to read slave position %d: %v", mapping.SlaveTicket, err)
			e.transition(masterTicket, models.StateMirrored, models.ConditionCloseFailed)
			continue
		}

		if err := client.SymbolSelect(pos.Symbol, true); err != nil {
			e.logger.Printf("Failed to select %s on slave: %v", pos.Symbol, err)
		}

		tick, err := client.SymbolTick(pos.Symbol)
		if err != nil {
			e.logger.Printf("Failed to read tick for %s: %v", pos.Symbol, err)
			e.transition(masterTicket, models.StateMirrored, models.ConditionCloseFailed)
			continue
		}
		price := tick.Bid
		if pos.Side == broker.SideSell {
			price = tick.Ask
		}

		req := &broker.OrderRequest{
			Action:    broker.ActionDeal,
			Position:  mapping.SlaveTicket,
			Symbol:    pos.Symbol,
			Volume:    pos.Volume,
			Side:      pos.Side.Opposite(),
			Price:     price,
			Deviation: e.cfg.CloseDeviation,
			Magic:     e.cfg.Magic,
			Comment:   e.cfg.CloseComment,
			TypeTime:  broker.TimeGTC,
		}

		result, mode, latencyMS, err := e.sendWithFilling(req, pos.Symbol)
		if err != nil {
			e.logger.Printf("Failed to close slave ticket %d: %v", mapping.SlaveTicket, err)
			e.transition(masterTicket, models.StateMirrored, models.ConditionCloseFailed)
			continue
		}
		if result == nil || !result.Done() {
			e.logger.Printf("Failed to close slave ticket %d: retcode %d, comment %q",
				mapping.SlaveTicket, resultRetcode(result), resultComment(result))
			e.transition(masterTicket, models.StateMirrored, models.ConditionCloseFailed)
			continue
		}

		e.tickets.Remove(masterTicket)
		e.transition(masterTicket, models.StateClosed, models.ConditionCloseDone)
		e.audit.CloseAction(audit.CloseRecord{
			Time:         time.Now(),
			MasterTicket: masterTicket,
			SlaveTicket:  mapping.SlaveTicket,
			Symbol:       pos.Symbol,
			Volume:       pos.Volume,
			Side:         pos.Side,
			Filling:      mode,
			LatencyMS:    latencyMS,
		})
		e.logger.Printf("Closed slave ticket %d (master ticket %d) using filling mode %s in %.1f ms",
			mapping.SlaveTicket, masterTicket, mode, latencyMS)
	}
}

// sendWithFilling submits a deal request, choosing the filling mode from
// the per-symbol cache when present and otherwise running the discovery
// sequence. The returned latency is the wall-clock round-trip of the
// attempt that produced the returned result.
//
// A transport error aborts immediately. A non-fill broker rejection stops
// further attempts for this request; only INVALID_FILL advances to the
// next candidate mode.
func (e *Engine) sendWithFilling(req *broker.OrderRequest, symbol string) (*broker.OrderResult, broker.FillingMode, float64, error) {
	client := e.session.Client()

	if cached, ok := e.filling.Get(symbol); ok {
		req.TypeFilling = cached
		start := time.Now()
		result, err := client.OrderSend(req)
		latencyMS := float64(time.Since(start)) / float64(time.Millisecond)
		if err != nil {
			return nil, cached, 0, err
		}
		if result.Done() {
			return result, cached, latencyMS, nil
		}
		if result.RetCode != broker.RetInvalidFill {
			return result, cached, latencyMS, nil
		}
		e.logger.Printf("Cached filling mode %s is no longer supported for %s, rediscovering", cached, symbol)
		e.filling.Invalidate(symbol)
	}

	var (
		last     *broker.OrderResult
		lastMode broker.FillingMode
		lastLat  float64
	)
	for _, mode := range discoveryOrder {
		req.TypeFilling = mode
		start := time.Now()
		result, err := client.OrderSend(req)
		latencyMS := float64(time.Since(start)) / float64(time.Millisecond)
		if err != nil {
			return nil, mode, 0, err
		}
		last, lastMode, lastLat = result, mode, latencyMS

		if result.Done() {
			e.filling.Put(symbol, mode)
			return result, mode, latencyMS, nil
		}
		if result.RetCode == broker.RetInvalidFill {
			e.logger.Printf("Filling mode %s unsupported for %s, trying next", mode, symbol)
			continue
		}
		break
	}
	return last, lastMode, lastLat, nil
}

// transition advances the mirror state machine, logging the (should-be
// impossible) invalid transitions instead of propagating them.
func (e *Engine) transition(ticket uint64, to models.MirrorState, condition string) {
	if err := e.states.Transition(ticket, to, condition); err != nil {
		e.logger.Printf("State machine: %v", err)
	}
}

func resultRetcode(r *broker.OrderResult) broker.RetCode {
	if r == nil {
		return 0
	}
	return r.RetCode
}

func resultComment(r *broker.OrderResult) string {
	if r == nil {
		return ""
	}
	return r.Comment
}
