// Package audit maintains the append-only orderlog: one line per successful
// replication action, in a fixed splitter-friendly format, plus the parser
// the dashboard uses to read it back.
package audit

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mt5tools/copier/internal/broker"
)

// timeLayout is the timestamp prefix of every audit line.
const timeLayout = "2006-01-02 15:04:05"

// OpenRecord describes a successfully mirrored open.
type OpenRecord struct {
	Time         time.Time
	MasterTicket uint64
	SlaveTicket  uint64
	MasterSymbol string
	SlaveSymbol  string
	MasterLot    float64
	SlaveLot     float64
	Side         broker.Side
	Price        float64
	SL           float64
	TP           float64
	Filling      broker.FillingMode
	LatencyMS    float64
}

// CloseRecord describes a successfully mirrored close.
type CloseRecord struct {
	Time         time.Time
	MasterTicket uint64
	SlaveTicket  uint64
	Symbol       string
	Volume       float64
	Side         broker.Side
	Filling      broker.FillingMode
	LatencyMS    float64
}

// ModifyRecord describes a successful SL/TP sync.
type ModifyRecord struct {
	Time         time.Time
	MasterTicket uint64
	SlaveTicket  uint64
	SL           float64
	TP           float64
}

// Writer appends audit records to the orderlog. Each record is flushed to
// disk before the call returns so a process kill never loses a dispatched
// action. Write failures are reported to the error logger and swallowed:
// the audit log must never take the engine down.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	errLog *log.Logger
}

// NewWriter opens (or creates) the orderlog at path in append mode.
func NewWriter(path string, errLog *log.Logger) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304 -- path comes from the config file
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Writer{file: f, errLog: errLog}, nil
}

// Close releases the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Open appends an open-action line.
func (w *Writer) Open(rec OpenRecord) {
	w.append(FormatOpen(rec))
}

// CloseAction appends a close-action line.
func (w *Writer) CloseAction(rec CloseRecord) {
	w.append(FormatClose(rec))
}

// Modify appends an SL/TP sync line.
func (w *Writer) Modify(rec ModifyRecord) {
	w.append(FormatModify(rec))
}

func (w *Writer) append(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.WriteString(line + "\n"); err != nil {
		w.errLog.Printf("Failed to write to orderlog: %v", err)
		return
	}
	if err := w.file.Sync(); err != nil {
		w.errLog.Printf("Failed to sync orderlog: %v", err)
	}
}

// FormatOpen renders an open-action line.
func FormatOpen(r OpenRecord) string {
	return fmt.Sprintf(
		"%s | MASTER_TICKET=%d | SLAVE_TICKET=%d | %s->%s | MASTER_LOT=%s | SLAVE_LOT=%s | TYPE=%s | PRICE=%s | SL=%s | TP=%s | FILLING=%s | LATENCY_MS=%.1f",
		r.Time.Format(timeLayout),
		r.MasterTicket, r.SlaveTicket,
		r.MasterSymbol, r.SlaveSymbol,
		dec(r.MasterLot), dec(r.SlaveLot),
		r.Side, dec(r.Price), dec(r.SL), dec(r.TP),
		r.Filling, r.LatencyMS,
	)
}

// FormatClose renders a close-action line.
func FormatClose(r CloseRecord) string {
	return fmt.Sprintf(
		"%s | CLOSE | MASTER_TICKET=%d | SLAVE_TICKET=%d | SYMBOL=%s | VOLUME=%s | TYPE=%s | FILLING=%s | LATENCY_MS=%.1f",
		r.Time.Format(timeLayout),
		r.MasterTicket, r.SlaveTicket,
		r.Symbol, dec(r.Volume), r.Side, r.Filling, r.LatencyMS,
	)
}

// FormatModify renders an SL/TP sync line.
func FormatModify(r ModifyRecord) string {
	return fmt.Sprintf(
		"%s | MODIFY | MASTER_TICKET=%d | SLAVE_TICKET=%d | SL=%s | TP=%s",
		r.Time.Format(timeLayout),
		r.MasterTicket, r.SlaveTicket,
		dec(r.SL), dec(r.TP),
	)
}

// dec renders a decimal field without a fixed precision and without
// exponent notation.
func dec(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
