package audit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mt5tools/copier/internal/broker"
)

// Kind discriminates the audit line variants.
type Kind string

const (
	// KindOpen is a mirrored open.
	KindOpen Kind = "OPEN"
	// KindClose is a mirrored close.
	KindClose Kind = "CLOSE"
	// KindModify is an SL/TP sync.
	KindModify Kind = "MODIFY"
)

// Record is one parsed audit line. Fields not present in the line's
// variant are left zero.
type Record struct {
	Kind         Kind
	Time         time.Time
	MasterTicket uint64
	SlaveTicket  uint64
	MasterSymbol string
	SlaveSymbol  string
	Symbol       string
	MasterLot    float64
	SlaveLot     float64
	Volume       float64
	Side         broker.Side
	Price        float64
	SL           float64
	TP           float64
	Filling      broker.FillingMode
	LatencyMS    float64
}

// ParseLine parses one orderlog line. The format is a '|'-separated list of
// KEY=value fields after a timestamp, with two positional exceptions: the
// CLOSE/MODIFY marker and the open line's "master->slave" symbol pair.
func ParseLine(line string) (*Record, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty line")
	}

	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("malformed audit line: %q", line)
	}

	ts, err := time.ParseInLocation(timeLayout, parts[0], time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad timestamp %q: %w", parts[0], err)
	}

	rec := &Record{Kind: KindOpen, Time: ts}
	fields := parts[1:]
	switch fields[0] {
	case "CLOSE":
		rec.Kind = KindClose
		fields = fields[1:]
	case "MODIFY":
		rec.Kind = KindModify
		fields = fields[1:]
	}

	for _, field := range fields {
		key, value, found := strings.Cut(field, "=")
		if !found {
			// The open line's symbol routing token.
			if master, slave, ok := strings.Cut(field, "->"); ok && rec.Kind == KindOpen {
				rec.MasterSymbol = master
				rec.SlaveSymbol = slave
				continue
			}
			return nil, fmt.Errorf("unrecognised field %q", field)
		}
		if err := rec.setField(key, value); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (r *Record) setField(key, value string) error {
	var err error
	switch key {
	case "MASTER_TICKET":
		r.MasterTicket, err = strconv.ParseUint(value, 10, 64)
	case "SLAVE_TICKET":
		r.SlaveTicket, err = strconv.ParseUint(value, 10, 64)
	case "SYMBOL":
		r.Symbol = value
	case "MASTER_LOT":
		r.MasterLot, err = strconv.ParseFloat(value, 64)
	case "SLAVE_LOT":
		r.SlaveLot, err = strconv.ParseFloat(value, 64)
	case "VOLUME":
		r.Volume, err = strconv.ParseFloat(value, 64)
	case "TYPE":
		switch value {
		case "BUY":
			r.Side = broker.SideBuy
		case "SELL":
			r.Side = broker.SideSell
		default:
			err = fmt.Errorf("unknown side %q", value)
		}
	case "PRICE":
		r.Price, err = strconv.ParseFloat(value, 64)
	case "SL":
		r.SL, err = strconv.ParseFloat(value, 64)
	case "TP":
		r.TP, err = strconv.ParseFloat(value, 64)
	case "FILLING":
		r.Filling, err = broker.ParseFillingMode(value)
	case "LATENCY_MS":
		r.LatencyMS, err = strconv.ParseFloat(value, 64)
	default:
		// Unknown keys are tolerated so the format can grow fields
		// without breaking older dashboards.
		return nil
	}
	if err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}
